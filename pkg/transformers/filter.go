package transformers

import (
	"context"
	"fmt"

	"github.com/oarkflow/expr"
	"github.com/oarkflow/expr/vm"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/utils"
)

// FilterTransformer keeps messages whose condition evaluates to true, e.g.
// `hl7_message_type == "ORU^R01"`. The condition is compiled once and runs
// against the enriched record, so it sees header metadata and selected fields.
type FilterTransformer struct {
	name      string
	condition string
	program   *vm.Program
}

func NewFilterTransformer(name, condition string) (*FilterTransformer, error) {
	if condition == "" {
		return nil, fmt.Errorf("filter %s: condition cannot be empty", name)
	}
	program, err := expr.Parse(condition)
	if err != nil {
		return nil, fmt.Errorf("filter %s: parse %q: %w", name, condition, err)
	}
	return &FilterTransformer{name: name, condition: condition, program: program}, nil
}

func (ft *FilterTransformer) Name() string {
	return ft.name
}

// Transform returns the record when the condition holds and nil when it does
// not. Errors name the message's control id so a rejected message can be
// traced back to the feed.
func (ft *FilterTransformer) Transform(_ context.Context, rec utils.Record) (utils.Record, error) {
	result, err := ft.program.Eval(rec)
	if err != nil {
		return nil, fmt.Errorf("filter %s: message %s: %w", ft.name, messageRef(rec), err)
	}
	keep, ok := result.(bool)
	if !ok {
		return nil, fmt.Errorf("filter %s: message %s: condition %q returned %T, not a boolean", ft.name, messageRef(rec), ft.condition, result)
	}
	if !keep {
		return nil, nil
	}
	return rec, nil
}

// messageRef identifies a record by control id, falling back to its position
// in the feed before the message was parsed.
func messageRef(rec utils.Record) string {
	if id, ok := utils.GetString(rec, "hl7_control_id"); ok && id != "" {
		return id
	}
	path, _ := utils.GetString(rec, "source_path")
	return fmt.Sprintf("%s#%v", path, rec["message_index"])
}

var _ contracts.Transformer = (*FilterTransformer)(nil)
