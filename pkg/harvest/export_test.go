package harvest

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

func newTestProgress() *ledger.ProgressLedger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return ledger.NewProgressLedger(afero.NewMemMapFs(), "/progress.json", logger)
}
