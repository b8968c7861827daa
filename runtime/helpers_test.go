package runtime

import (
	"errors"

	"github.com/prkrtg/bamboo/envelope"
)

var errBoom = errors.New("boom")

func newConfigEnvelope(source, dest, key string, body map[string]interface{}) (envelope.Message, error) {
	return envelope.NewBuilder(source).
		Config(key, body, false).
		To(dest).
		Build()
}
