// internal/rules/operators.go
package rules

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/schemainspector/internal/types"
)

/*
 * The four value checks.
 *
 * Each check walks one ConstraintMapping (constraint key -> event IDs) and
 * adds the IDs of every constraint the value violates to the failed set:
 *   - pinned: Stringify(value) must equal the key; an integral float also
 *     matches its decimal form ("1.0")
 *   - allowed: Stringify(value) must be in the JSON array the key encodes
 *   - regex: the value must be a string and contain a match for the key
 *   - minmax: the value must be a non-NaN number within the "min,max" key,
 *     bounds inclusive, an empty bound unbounded
 *
 * Malformed keys (invalid JSON array, invalid regex, unparsable bound) are
 * logged at warn and skipped, so they never fail an event.
 *
 * Regexes use RE2 (linear time) with search semantics: "^abc" anchors,
 * "abc" matches anywhere.
 */

func (v *Validator) checkPinned(value types.Value, pinned types.ConstraintMapping, failed failedSet) {
	s := Stringify(value)
	alt := decimalForm(value)
	for key, ids := range pinned {
		if s != key && (alt == "" || alt != key) {
			failed.add(ids)
		}
	}
}

// decimalForm returns "n.0" for an integral, finite float and "" otherwise.
func decimalForm(value types.Value) string {
	f, ok := value.AsFloat()
	if !ok || math.IsInf(f, 0) || f != math.Trunc(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func (v *Validator) checkAllowed(value types.Value, allowed types.ConstraintMapping, failed failedSet) {
	s := Stringify(value)
	for key, ids := range allowed {
		set, ok := v.allowedSet(key)
		if !ok {
			continue
		}
		if _, in := set[s]; !in {
			failed.add(ids)
		}
	}
}

func (v *Validator) checkRegex(value types.Value, patterns types.ConstraintMapping, failed failedSet) {
	s, isString := value.AsString()
	for pattern, ids := range patterns {
		if !isString {
			failed.add(ids)
			continue
		}
		re := v.regex(pattern)
		if re == nil {
			continue
		}
		if !re.MatchString(s) {
			failed.add(ids)
		}
	}
}

func (v *Validator) checkMinMax(value types.Value, ranges types.ConstraintMapping, failed failedSet) {
	n, isNumber := value.Number()
	if !isNumber || math.IsNaN(n) {
		for _, ids := range ranges {
			failed.add(ids)
		}
		return
	}

	for key, ids := range ranges {
		lo, hi, ok := parseRange(key)
		if !ok {
			v.logger.Warn("invalid min/max range", "range", key)
			continue
		}
		if n < lo || n > hi {
			failed.add(ids)
		}
	}
}

// parseRange splits "min,max" keeping empty fields; empty bounds are infinite.
func parseRange(key string) (lo, hi float64, ok bool) {
	parts := strings.SplitN(key, ",", 3)
	lo, hi = math.Inf(-1), math.Inf(1)

	if len(parts) > 0 {
		if lo, ok = parseBound(parts[0], lo); !ok {
			return 0, 0, false
		}
	}
	if len(parts) > 1 {
		if hi, ok = parseBound(parts[1], hi); !ok {
			return 0, 0, false
		}
	}
	return lo, hi, true
}

func parseBound(s string, unbounded float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return unbounded, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// regex returns the compiled pattern, or nil when it does not compile.
func (v *Validator) regex(pattern string) *regexp.Regexp {
	if re, ok := v.regexes.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		v.logger.Warn("invalid regex pattern", "pattern", pattern, "error", err)
		re = nil
	}
	v.regexes.Add(pattern, re)
	return re
}

// allowedSet parses a JSON array key into a set of canonical strings.
func (v *Validator) allowedSet(key string) (map[string]struct{}, bool) {
	if set, ok := v.allowed.Get(key); ok {
		return set, set != nil
	}

	var raw []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(key)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		v.logger.Warn("invalid allowed values JSON", "allowed", key, "error", err)
		v.allowed.Add(key, nil)
		return nil, false
	}

	set := make(map[string]struct{}, len(raw))
	for _, elem := range raw {
		parsed, err := types.FromJSON(elem)
		if err != nil {
			continue
		}
		set[Stringify(parsed)] = struct{}{}
	}
	v.allowed.Add(key, set)
	return set, true
}
