package dynamo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/elementstore/internal/ir"
	"github.com/roach88/elementstore/internal/querydoc"
)

// maxInOperands is the DynamoDB limit on IN operands.
const maxInOperands = 100

// Filter is a FilterExpression with its placeholders.
type Filter struct {
	Expression string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// headerFields are the document fields a Filter may reference.
var headerFields = map[string]bool{
	ir.FieldID:        true,
	ir.FieldType:      true,
	ir.FieldOwner:     true,
	ir.FieldOwnerName: true,
	ir.FieldGroup:     true,
	ir.FieldChanged:   true,
}

// PushDown translates the header criteria at the top level of where into a
// FilterExpression restricted to collection. Criteria it cannot translate
// are left out, so the filter may match more documents than where.
func PushDown(collection string, where querydoc.Criteria) Filter {
	f := &filterBuilder{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
	parts := []string{f.name(ir.FieldType) + " = " + f.value(&types.AttributeValueMemberS{Value: collection})}

	top := []querydoc.Criteria{where}
	if and, ok := where.(querydoc.And); ok {
		top = and.Criteria
	}
	for _, c := range top {
		if expr, ok := f.translate(c); ok {
			parts = append(parts, expr)
		}
	}
	return Filter{Expression: strings.Join(parts, " AND "), Names: f.names, Values: f.values}
}

type filterBuilder struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (f *filterBuilder) name(field string) string {
	key := "#" + field
	f.names[key] = field
	return key
}

func (f *filterBuilder) value(v types.AttributeValue) string {
	key := fmt.Sprintf(":v%d", len(f.values))
	f.values[key] = v
	return key
}

func (f *filterBuilder) translate(c querydoc.Criteria) (string, bool) {
	switch n := c.(type) {
	case querydoc.Eq:
		if !headerFields[n.Path] || n.Path == ir.FieldType {
			return "", false
		}
		av, ok := attr(n.Value)
		if !ok {
			return "", false
		}
		return f.name(n.Path) + " = " + f.value(av), true
	case querydoc.In:
		if !headerFields[n.Path] || len(n.Values) == 0 || len(n.Values) > maxInOperands {
			return "", false
		}
		keys := make([]string, len(n.Values))
		for i, v := range n.Values {
			av, ok := attr(v)
			if !ok {
				return "", false
			}
			keys[i] = f.value(av)
		}
		return f.name(n.Path) + " IN (" + strings.Join(keys, ", ") + ")", true
	case querydoc.Range:
		if !headerFields[n.Path] {
			return "", false
		}
		var parts []string
		if n.Lower != nil {
			av, ok := attr(n.Lower)
			if !ok {
				return "", false
			}
			op := " > "
			if n.LowerInclusive {
				op = " >= "
			}
			parts = append(parts, f.name(n.Path)+op+f.value(av))
		}
		if n.Upper != nil {
			av, ok := attr(n.Upper)
			if !ok {
				return "", false
			}
			op := " < "
			if n.UpperInclusive {
				op = " <= "
			}
			parts = append(parts, f.name(n.Path)+op+f.value(av))
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, " AND "), true
	default:
		return "", false
	}
}

// attr converts a header value to its stored attribute form.
func attr(v ir.Value) (types.AttributeValue, bool) {
	switch val := v.(type) {
	case ir.String:
		return &types.AttributeValueMemberS{Value: string(val)}, true
	case ir.Date:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(val.Millis(), 10)}, true
	case ir.Long:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(val), 10)}, true
	default:
		return nil, false
	}
}
