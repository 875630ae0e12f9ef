package db

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ = Describe("GormLogrusLogger", func() {
	var (
		buf    *bytes.Buffer
		base   *logrus.Logger
		gl     *GormLogrusLogger
		ctx    context.Context
		called int
	)

	statement := func() (string, int64) {
		called++
		return "INSERT INTO games ...", 1
	}

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		base = logrus.New()
		base.SetOutput(buf)
		base.SetFormatter(&logrus.JSONFormatter{})
		base.SetLevel(logrus.InfoLevel)
		gl = NewGormLogrusLogger(base)
		ctx = context.Background()
		called = 0
	})

	It("skips fast successful statements without rendering them", func() {
		gl.Trace(ctx, time.Now(), statement, nil)
		Expect(called).To(BeZero())
		Expect(buf.Len()).To(BeZero())
	})

	It("ignores record-not-found", func() {
		gl.Trace(ctx, time.Now(), statement, gorm.ErrRecordNotFound)
		Expect(buf.Len()).To(BeZero())
	})

	It("logs failed and slow statements", func() {
		gl.Trace(ctx, time.Now(), statement, errors.New("database is locked"))
		Expect(buf.String()).To(ContainSubstring("Statement failed"))
		Expect(buf.String()).To(ContainSubstring("database is locked"))

		buf.Reset()
		gl.WithSlowQuery(time.Millisecond).Trace(ctx, time.Now().Add(-time.Second), statement, nil)
		Expect(buf.String()).To(ContainSubstring("Slow statement"))
	})

	It("is silenced by LogMode", func() {
		silent := gl.LogMode(gormlogger.Silent)
		silent.Trace(ctx, time.Now(), statement, errors.New("boom"))
		silent.Error(ctx, "boom %d", 1)
		Expect(buf.Len()).To(BeZero())

		gl.Error(ctx, "boom %d", 1)
		Expect(buf.String()).To(ContainSubstring("boom 1"))
	})
})
