// Package logging configures logrus for the harvester.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// DefaultPriorityFields are rendered right after the message, in this order.
var DefaultPriorityFields = []string{"run_id", "task_type", "identifier", logrus.ErrorKey}

// ConsoleFormatter renders one line per entry: timestamp, padded level,
// message, then key=value pairs. Priority fields come first and are
// highlighted; the rest follow alphabetically.
type ConsoleFormatter struct {
	TimestampFormat string
	PriorityFields  []string
	DisableColors   bool
}

// NewConsoleFormatter returns a formatter using RFC3339 timestamps and
// DefaultPriorityFields.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		TimestampFormat: time.RFC3339,
		PriorityFields:  DefaultPriorityFields,
	}
}

type palette struct {
	time, key, highlight, value *color.Color
}

func (f *ConsoleFormatter) palette() palette {
	p := palette{
		time:      color.New(color.FgYellow),
		key:       color.New(color.FgCyan),
		highlight: color.New(color.FgGreen),
		value:     color.New(color.FgWhite),
	}
	if f.DisableColors {
		p.time.DisableColor()
		p.key.DisableColor()
		p.highlight.DisableColor()
		p.value.DisableColor()
	}
	return p
}

// Format implements logrus.Formatter.
func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	p := f.palette()
	lc := levelColor(entry.Level)
	if f.DisableColors {
		lc.DisableColor()
	}

	fmt.Fprintf(b, "%s %s %s ",
		p.time.Sprint(entry.Time.Format(f.TimestampFormat)),
		lc.Sprintf("%-7s", strings.ToUpper(entry.Level.String())),
		lc.Sprint(entry.Message),
	)

	for _, k := range f.orderedKeys(entry.Data) {
		key := p.key
		if f.rank(k) >= 0 {
			key = p.highlight
		}
		b.WriteString(key.Sprint(k + "="))
		b.WriteString(p.value.Sprint(formatValue(entry.Data[k])))
		b.WriteByte(' ')
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ConsoleFormatter) rank(key string) int {
	for i, p := range f.PriorityFields {
		if p == key {
			return i
		}
	}
	return -1
}

func (f *ConsoleFormatter) orderedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := f.rank(keys[i]), f.rank(keys[j])
		switch {
		case ri >= 0 && rj >= 0:
			return ri < rj
		case ri >= 0 || rj >= 0:
			return ri >= 0
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel:
		return color.New(color.FgRed)
	case logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgWhite)
}
