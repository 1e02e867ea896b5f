// Package dynamofake is an in-memory DynamoDB stand-in for unit tests. It
// implements the narrow client subset the stores use, including the condition
// expressions they rely on, so idempotency races can be exercised without a
// real table.
package dynamofake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is one stored record.
type Item = map[string]types.AttributeValue

// pkAttrs are the primary-key attribute names the fake recognizes, in
// resolution order. order_id resolves before cart_id because order items also
// carry a cart_id attribute.
var pkAttrs = []string{"idempotency_key", "order_id", "variant_id", "cart_id"}

// Fake stores items per table: table -> pk value -> item.
type Fake struct {
	mu     sync.Mutex
	tables map[string]map[string]Item

	PutCalls      int
	GetCalls      int
	UpdateCalls   int
	TransactCalls int

	// FailNextTransact, when set, is returned by the next TransactWriteItems
	// call and then cleared.
	FailNextTransact error
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{tables: map[string]map[string]Item{}}
}

// Table returns the live item map of a table (creating it when absent), so
// tests can seed and inspect raw records.
func (f *Fake) Table(name string) map[string]Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureTable(name)
}

func (f *Fake) ensureTable(name string) map[string]Item {
	if _, ok := f.tables[name]; !ok {
		f.tables[name] = map[string]Item{}
	}
	return f.tables[name]
}

func pkOf(attrs Item) (string, string, error) {
	for _, name := range pkAttrs {
		if v, ok := attrs[name]; ok {
			s, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return "", "", fmt.Errorf("pk %s is not a string", name)
			}
			return name, s.Value, nil
		}
	}
	return "", "", errors.New("no primary key attribute")
}

func (f *Fake) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++

	table := f.ensureTable(*params.TableName)
	_, pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		existing := table[pk]
		if !evalCondition(existing, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	table[pk] = cloneItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++

	table := f.ensureTable(*params.TableName)
	_, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := table[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: cloneItem(item)}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++

	table := f.ensureTable(*params.TableName)
	_, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := table[pk]
	if !ok {
		return nil, errors.New("item not found")
	}
	if params.ConditionExpression != nil {
		if !evalCondition(item, *params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if err := applyUpdate(item, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: cloneItem(item)}, nil
}

// TransactWriteItems checks every item's condition first and applies all
// writes only when every condition holds, mirroring the real atomicity.
func (f *Fake) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransactCalls++

	if f.FailNextTransact != nil {
		err := f.FailNextTransact
		f.FailNextTransact = nil
		return nil, err
	}

	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := f.ensureTable(*p.TableName)
			_, pk, err := pkOf(p.Item)
			if err != nil {
				return nil, err
			}
			if p.ConditionExpression != nil {
				if !evalCondition(table[pk], *p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
					return nil, canceled()
				}
			}
		}
		if u := it.Update; u != nil {
			table := f.ensureTable(*u.TableName)
			_, pk, err := pkOf(u.Key)
			if err != nil {
				return nil, err
			}
			item, ok := table[pk]
			if !ok {
				return nil, fmt.Errorf("transact update: item %s not found", pk)
			}
			if u.ConditionExpression != nil {
				if !evalCondition(item, *u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues) {
					return nil, canceled()
				}
			}
		}
	}

	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := f.ensureTable(*p.TableName)
			_, pk, _ := pkOf(p.Item)
			table[pk] = cloneItem(p.Item)
		}
		if u := it.Update; u != nil {
			table := f.ensureTable(*u.TableName)
			_, pk, _ := pkOf(u.Key)
			if err := applyUpdate(table[pk], *u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func canceled() error {
	return &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: sdkaws.String("ConditionalCheckFailed")},
		},
	}
}

func cloneItem(in Item) Item {
	out := make(Item, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// --- expression evaluation ---

func resolveName(raw string, names map[string]string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "#") {
		if real, ok := names[raw]; ok {
			return real
		}
	}
	return raw
}

// evalCondition supports the forms the stores use: attribute_not_exists(x),
// equality, less-than, and OR combinations of those.
func evalCondition(item Item, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, part := range strings.Split(expr, " OR ") {
		if evalSimpleCondition(item, strings.TrimSpace(part), names, values) {
			return true
		}
	}
	return false
}

func evalSimpleCondition(item Item, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	if strings.HasPrefix(expr, "attribute_not_exists(") {
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(expr, "attribute_not_exists("), ")"), names)
		if item == nil {
			return true
		}
		_, exists := item[attr]
		return !exists
	}
	if idx := strings.Index(expr, " < "); idx >= 0 {
		attr := resolveName(expr[:idx], names)
		ref := values[strings.TrimSpace(expr[idx+3:])]
		if item == nil {
			return false
		}
		return compareStrings(item[attr], ref, func(a, b string) bool { return a < b })
	}
	if idx := strings.Index(expr, " = "); idx >= 0 {
		attr := resolveName(expr[:idx], names)
		ref := values[strings.TrimSpace(expr[idx+3:])]
		if item == nil {
			return false
		}
		return attrEqual(item[attr], ref)
	}
	return false
}

func compareStrings(a, b types.AttributeValue, cmp func(a, b string) bool) bool {
	as, aok := a.(*types.AttributeValueMemberS)
	bs, bok := b.(*types.AttributeValueMemberS)
	return aok && bok && cmp(as.Value, bs.Value)
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	default:
		return false
	}
}

// applyUpdate supports "SET a = :v, ..." with an optional trailing
// "REMOVE x, ..." clause and the if_not_exists(...)+inc counter form.
func applyUpdate(item Item, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	setPart := expr
	removePart := ""
	if idx := strings.Index(expr, "REMOVE "); idx >= 0 {
		setPart = strings.TrimSpace(expr[:idx])
		removePart = strings.TrimSpace(expr[idx+len("REMOVE "):])
	}

	if setPart != "" {
		setPart = strings.TrimSpace(strings.TrimPrefix(setPart, "SET "))
		for _, clause := range splitTopLevel(setPart) {
			if err := applySetClause(item, clause, names, values); err != nil {
				return err
			}
		}
	}
	for _, attr := range strings.Split(removePart, ",") {
		attr = strings.TrimSpace(attr)
		if attr != "" {
			delete(item, resolveName(attr, names))
		}
	}
	return nil
}

func applySetClause(item Item, clause string, names map[string]string, values map[string]types.AttributeValue) error {
	parts := strings.SplitN(clause, " = ", 2)
	if len(parts) != 2 {
		return fmt.Errorf("unsupported set clause %q", clause)
	}
	attr := resolveName(parts[0], names)
	rhs := strings.TrimSpace(parts[1])

	// counter form: if_not_exists(attr, :zero) + :inc
	if strings.HasPrefix(rhs, "if_not_exists(") {
		plus := strings.Index(rhs, ") + ")
		if plus < 0 {
			return fmt.Errorf("unsupported rhs %q", rhs)
		}
		incRef := strings.TrimSpace(rhs[plus+4:])
		current := int64(0)
		if cur, ok := item[attr].(*types.AttributeValueMemberN); ok {
			fmt.Sscanf(cur.Value, "%d", &current)
		}
		inc := int64(0)
		if n, ok := values[incRef].(*types.AttributeValueMemberN); ok {
			fmt.Sscanf(n.Value, "%d", &inc)
		}
		item[attr] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", current+inc)}
		return nil
	}

	val, ok := values[rhs]
	if !ok {
		return fmt.Errorf("missing expression value %q", rhs)
	}
	item[attr] = val
	return nil
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
