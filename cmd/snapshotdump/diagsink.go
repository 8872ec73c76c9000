package main

import (
	"github.com/sirupsen/logrus"

	"unflutter/internal/dartfmt"
)

// logDiags drains diags and renders each entry as a structured logrus
// field set, filtered to at or above level. Library code never calls
// logrus directly — it only appends to dartfmt.Diags — so this is the one
// place in the module a concrete logging backend is wired in.
func logDiags(log *logrus.Logger, diags *dartfmt.Diags, level dartfmt.PrintLevel) {
	for _, d := range diags.Filter(level) {
		entry := log.WithFields(logrus.Fields{
			"offset": d.Offset,
			"kind":   d.Kind,
		})
		switch d.Kind {
		case dartfmt.DiagTruncated, dartfmt.DiagInvalid:
			entry.Warn(d.Msg)
		default:
			entry.Info(d.Msg)
		}
	}
}
