// Package logging wires the runtime to a structured logger. It generalizes
// the teacher's session-scoped logger (atomic/logging/session.go) from a
// file-backed *log.Logger to logrus's structured, leveled logger, matching
// the ecosystem convention the retrieval pack itself uses for this concern
// (c6ai-hlf-easy/node/peer.go imports sirupsen/logrus directly).
package logging

import "github.com/sirupsen/logrus"

// New returns a logrus entry pre-tagged with peer_id, ready to be handed to
// runtime.New. debug, when true, lowers the effective level to Debug;
// otherwise the standard logger's configured level is used unchanged.
func New(peerID string, debug bool) *logrus.Entry {
	base := logrus.StandardLogger()
	if debug {
		base.SetLevel(logrus.DebugLevel)
	}
	return base.WithField("peer_id", peerID)
}
