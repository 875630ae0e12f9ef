package harvest

import (
	"errors"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

var kindReasons = map[fetcher.Kind]ledger.ReasonCode{
	fetcher.KindTimeout:     ledger.ReasonTimeout,
	fetcher.KindRateLimited: ledger.ReasonRateLimited,
	fetcher.KindNotFound:    ledger.ReasonNotFound,
	fetcher.KindServerError: ledger.ReasonServerError,
	fetcher.KindMalformed:   ledger.ReasonMalformed,
}

// reasonFor maps a terminal per-identifier error to its ledger reason.
func reasonFor(err error) ledger.ReasonCode {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return ledger.ReasonStorage
	}

	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		if reason, ok := kindReasons[fetchErr.Kind]; ok {
			return reason
		}
	}

	return ledger.ReasonUnknown
}
