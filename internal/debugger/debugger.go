// Package debugger publishes tracked events and their schemas to a visual
// debugging sink. Hosts without a debugger use Noop; the CLI uses Log.
package debugger

import (
	"log/slog"
	"sort"
	"time"

	"github.com/solatis/schemainspector/internal/schema"
	"github.com/solatis/schemainspector/internal/types"
)

// Prop is one displayed property row.
type Prop struct {
	Group string
	Name  string
	Value string
}

// Entry is one debugger row: an event with its values or a schema with its
// types.
type Entry struct {
	Timestamp time.Time
	Label     string
	Props     []Prop
	Errors    []string
}

// Sink receives debugger entries. Implementations must not block the caller
// for long; Publish runs on the tracking path.
type Sink interface {
	Publish(Entry)
}

// Noop discards every entry.
type Noop struct{}

// Publish implements Sink.
func (Noop) Publish(Entry) {}

// Log writes entries to a slog logger at debug level.
type Log struct {
	Logger *slog.Logger
}

// Publish implements Sink.
func (l Log) Publish(e Entry) {
	if l.Logger == nil {
		return
	}
	attrs := make([]any, 0, len(e.Props)+2)
	attrs = append(attrs, "label", e.Label)
	for _, p := range e.Props {
		key := p.Name
		if p.Group != "" {
			key = p.Group + "." + p.Name
		}
		attrs = append(attrs, slog.String(key, p.Value))
	}
	if len(e.Errors) > 0 {
		attrs = append(attrs, "errors", e.Errors)
	}
	l.Logger.Debug("debugger entry", attrs...)
}

// EventEntry renders an event's property values, one row per top-level key.
func EventEntry(at time.Time, eventName string, props types.Value) Entry {
	keys := props.Keys()
	rows := make([]Prop, 0, len(keys))
	for _, k := range keys {
		v, _ := props.Field(k)
		rows = append(rows, Prop{Name: k, Value: describe(v)})
	}
	return Entry{Timestamp: at, Label: "Event: " + eventName, Props: rows}
}

// SchemaEntry renders an extracted schema, one row per top-level property.
func SchemaEntry(at time.Time, eventName string, s map[string]schema.Type) Entry {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]Prop, 0, len(names))
	for _, name := range names {
		rows = append(rows, Prop{Name: name, Value: s[name].Name()})
	}
	return Entry{Timestamp: at, Label: "Schema: " + eventName, Props: rows}
}

func describe(v types.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return v.Kind().String()
	}
	return string(data)
}
