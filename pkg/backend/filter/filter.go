package filter

import (
	"fmt"
	"strings"

	"github.com/khenidak/crossdc/pkg/backend/consts"
)

type Filter interface {
	And(filters ...Filter)
	Or(filters ...Filter)
	Generate() string
}

type filter struct {
	predicates string
}

func NewFilter() Filter {
	return &filter{}
}

func (f *filter) And(filters ...Filter) {
	f.join("and", filters)
}

func (f *filter) Or(filters ...Filter) {
	f.join("or", filters)
}

func (f *filter) join(op string, filters []Filter) {
	for _, thisFilter := range filters {
		if len(f.predicates) == 0 {
			f.predicates = thisFilter.Generate()
		} else {
			f.predicates = fmt.Sprintf("%s %s %s", f.predicates, op, thisFilter.Generate())
		}
	}
}

func (f *filter) Generate() string {
	return f.predicates
}

//  (filter *and* filter *and* filter ..)
func CombineAnd(filters ...Filter) Filter {
	return combine("and", filters)
}

// (filter *or* filter *or* filter ..)
func CombineOr(filters ...Filter) Filter {
	return combine("or", filters)
}

func combine(op string, filters []Filter) Filter {
	f := &filter{}
	f.join(op, filters)
	f.predicates = fmt.Sprintf("(%s)", f.predicates)
	return f
}

// x eq y
func Equal(field string, value string) Filter {
	return &filter{
		predicates: fmt.Sprintf("%s eq '%s'", field, quote(value)),
	}
}

//x ne y
func NotEqual(field string, value string) Filter {
	return &filter{
		predicates: fmt.Sprintf("%s ne '%s'", field, quote(value)),
	}
}

// returns a filter expression for PartitionKey
func Partition(pKey string) Filter {
	return Equal(consts.PartitionKeyFieldName, pKey)
}

func LeaseEntitiesOnly() Filter {
	return Equal(consts.EntityTypeFieldName, consts.EntityTypeLease)
}

// the single row carrying key/subKey
func LeaseEntity(key string, subKey string) Filter {
	return CombineAnd(
		Partition(key),
		Equal(consts.RowKeyFieldName, subKey),
		LeaseEntitiesOnly(),
	)
}

// odata string literals escape ' as ''
func quote(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
