package models

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// permilleScale is the number of Permille units in one per-mille.
const permilleScale = 1000

// maxWholePermille is the largest whole part ParsePermille accepts.
const maxWholePermille = math.MaxInt64/permilleScale - 1

// ErrNegativeWeight is returned for ownership weights below zero.
var ErrNegativeWeight = errors.New("permille: weight cannot be negative")

// Permille is an ownership weight in per-mille of the building value, held as an
// exact fixed-point count of thousandths of a per-mille. 83.333‰ is Permille(83333).
// Arithmetic and comparisons on Permille never go through floating point.
type Permille int64

// BuildingBaseline is the conventional total value of a building.
const BuildingBaseline = Permille(1000 * permilleScale)

// PermilleOf returns n whole per-mille.
func PermilleOf(n int64) Permille {
	return Permille(n * permilleScale)
}

// ParsePermille parses a decimal per-mille value such as "83.333" or "250".
// At most three fractional digits are accepted; finer precision is an error
// rather than a silent rounding. Negative values are rejected.
func ParsePermille(s string) (Permille, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("permille: empty value")
	}
	switch s[0] {
	case '-':
		return 0, fmt.Errorf("%w: %q", ErrNegativeWeight, s)
	case '+':
		s = s[1:]
	}
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" && (!hasDot || fracPart == "") {
		return 0, fmt.Errorf("permille: invalid value %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	fracPart = strings.TrimRight(fracPart, "0")
	if len(fracPart) > 3 {
		return 0, fmt.Errorf("permille: %q has more than three decimal places", s)
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("permille: invalid value %q: %w", s, err)
	}
	if whole < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNegativeWeight, s)
	}
	if whole > maxWholePermille {
		return 0, fmt.Errorf("permille: %q is out of range", s)
	}
	var frac int64
	if fracPart != "" {
		padded := fracPart + strings.Repeat("0", 3-len(fracPart))
		frac, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("permille: invalid value %q: %w", s, err)
		}
	}
	return Permille(whole*permilleScale + frac), nil
}

// String renders the weight as a decimal without trailing zeros.
func (p Permille) String() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / permilleScale
	frac := v % permilleScale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%03d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fs
}

// Float returns an approximate float64 value, for display only.
func (p Permille) Float() float64 {
	return float64(p) / permilleScale
}

// MarshalJSON encodes the weight as a JSON number.
func (p Permille) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (p *Permille) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	v, err := ParsePermille(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permille) UnmarshalText(text []byte) error {
	v, err := ParsePermille(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UnmarshalYAML decodes YAML scalars without a float64 detour.
func (p *Permille) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("permille: expected scalar, got yaml kind %d", node.Kind)
	}
	return p.UnmarshalText([]byte(node.Value))
}

// Percent returns part as a percentage of total, or 0 when total is not positive.
func Percent(part, total Permille) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
