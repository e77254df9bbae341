package sinks

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils"
)

// New builds the loader described by cfg. A stdout sink writes to out, or
// os.Stdout when out is nil.
func New(cfg config.SinkConfig, out io.Writer) (contracts.Loader, error) {
	switch t := strings.ToLower(cfg.Type); {
	case t == "" || t == "stdout":
		if out == nil {
			out = os.Stdout
		}
		return NewWriter(out), nil
	case t == "jsonl":
		return NewJSONLines(cfg.Path), nil
	case utils.IsSQLType(t):
		return NewSQL(cfg)
	case t == "mongodb" || t == "mongo":
		return NewMongo(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported sink type %q", cfg.Type)
	}
}
