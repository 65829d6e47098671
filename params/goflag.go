package params

import (
	goflag "flag"
	"reflect"
	"strings"

	"github.com/namsral/flag"
)

// EnvPrefix namespaces environment overrides, e.g. USAGEMON_LOG_LEVEL.
const EnvPrefix = "USAGEMON"

type flagValueWrapper struct {
	inner    goflag.Value
	flagType string
}

func wrapFlagValue(v goflag.Value) flag.Value {
	if pv, ok := v.(flag.Value); ok {
		return pv
	}

	pv := &flagValueWrapper{
		inner: v,
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Interface || t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	pv.flagType = strings.TrimSuffix(t.Name(), "Value")
	return pv
}

func (v *flagValueWrapper) String() string {
	return v.inner.String()
}

func (v *flagValueWrapper) Set(s string) error {
	return v.inner.Set(s)
}

func (v *flagValueWrapper) Type() string {
	return v.flagType
}

func (v *flagValueWrapper) IsBoolFlag() bool {
	b, ok := v.inner.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// FlagSetFromGoFlagSet mirrors every flag of a standard library flag set into
// a namsral flag set, so each can also be set from a prefixed env variable.
func FlagSetFromGoFlagSet(flagSet *goflag.FlagSet, prefix string) *flag.FlagSet {
	newSet := flag.NewFlagSetWithEnvPrefix(flagSet.Name(), prefix, flag.ContinueOnError)
	flagSet.VisitAll(func(f *goflag.Flag) {
		newSet.Var(wrapFlagValue(f.Value), f.Name, f.Usage)
	})
	return newSet
}
