package transformers

import (
	"fmt"

	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/parsers"
)

// BuildTransformers returns the HL7 transformer, the optional format
// transformer, then one filter per configured condition. Filters see the
// enriched and formatted record.
func BuildTransformers(cfg *config.Config, parser parsers.MessageParser) ([]contracts.Transformer, error) {
	hl7T, err := NewHL7Transformer(HL7TransformerOptions{
		Fields: cfg.Fields,
		Parser: parser,
	})
	if err != nil {
		return nil, err
	}
	transformers := []contracts.Transformer{hl7T}
	if len(cfg.Formats) > 0 {
		ft, err := NewFormatTransformer(cfg.Formats)
		if err != nil {
			return nil, err
		}
		transformers = append(transformers, ft)
	}
	for i, cond := range cfg.Filters {
		f, err := NewFilterTransformer(fmt.Sprintf("filter-%d", i+1), cond)
		if err != nil {
			return nil, err
		}
		transformers = append(transformers, f)
	}
	return transformers, nil
}
