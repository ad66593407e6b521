package settlement

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// absolutePositions converts a rule's positions to left-indexed positions for
// numbers of the given width, sorted and without duplicates.
func absolutePositions(positions []int, width int) ([]int, error) {
	seen := make(map[int]bool, len(positions))
	out := make([]int, 0, len(positions))
	for _, p := range positions {
		abs := p
		if p < 0 {
			abs = width + p
		}
		if abs < 0 || abs >= width {
			return nil, fmt.Errorf("position %d out of range for %d digits", p, width)
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	sort.Ints(out)
	return out, nil
}

// matchPositions reports whether bet and winning agree on every position.
func matchPositions(bet, winning string, positions []int) (bool, error) {
	if len(bet) != len(winning) {
		return false, fmt.Errorf("number %q and winning number %q differ in width", bet, winning)
	}
	abs, err := absolutePositions(positions, len(winning))
	if err != nil {
		return false, err
	}
	if len(abs) == 0 {
		return false, fmt.Errorf("empty position set")
	}
	for _, p := range abs {
		if bet[p] != winning[p] {
			return false, nil
		}
	}
	return true, nil
}

var describedPatterns = []struct {
	pattern lottery.Pattern
	label   string
}{
	{lottery.PatternFirstThree, "First three"},
	{lottery.PatternLastThree, "Last three"},
	{lottery.PatternFirstTwo, "First two"},
	{lottery.PatternLastTwo, "Last two"},
	{lottery.PatternFirstTwoLastOne, "First two and last"},
	{lottery.PatternFirstOneLastTwo, "First and last two"},
	{lottery.PatternCenterTwo, "Center two"},
	{lottery.PatternLastOne, "Last digit"},
}

// DescribePositions labels a position set for display. Sets that are not one
// of the canonical patterns read "Partial match".
func DescribePositions(positions []int, width int) string {
	abs, err := absolutePositions(positions, width)
	if err != nil || len(abs) == 0 {
		return "Partial match"
	}
	if len(abs) == width {
		return "Full number"
	}
	for _, d := range describedPatterns {
		canonical, _ := d.pattern.Positions(width)
		want, err := absolutePositions(canonical, width)
		if err != nil {
			continue
		}
		if equalInts(abs, want) {
			return d.label
		}
	}
	return "Partial match"
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// matchSpecial evaluates a special rule. None of the rules match the winning
// number itself.
func matchSpecial(rule lottery.SpecialRule, betNumber, betSeries, winNumber, winSeries string) (bool, error) {
	if len(betNumber) != len(winNumber) {
		return false, fmt.Errorf("number %q and winning number %q differ in width", betNumber, winNumber)
	}
	if betNumber == winNumber {
		return false, nil
	}
	switch rule {
	case lottery.SpecialInverted:
		return betNumber == reverse(winNumber), nil
	case lottery.SpecialCombined:
		return sortedDigits(betNumber) == sortedDigits(winNumber), nil
	case lottery.SpecialPrevious:
		prev, ok := shift(winNumber, -1)
		return ok && betNumber == prev, nil
	case lottery.SpecialNext:
		next, ok := shift(winNumber, 1)
		return ok && betNumber == next, nil
	case lottery.SpecialSeriesOnly:
		return winSeries != "" && betSeries == winSeries, nil
	default:
		return false, fmt.Errorf("unknown special rule %q", rule)
	}
}

func describeSpecial(rule lottery.SpecialRule) string {
	switch rule {
	case lottery.SpecialInverted:
		return "Inverted number"
	case lottery.SpecialCombined:
		return "Combined digits"
	case lottery.SpecialPrevious:
		return "Previous number"
	case lottery.SpecialNext:
		return "Next number"
	case lottery.SpecialSeriesOnly:
		return "Series match"
	default:
		return string(rule)
	}
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func sortedDigits(s string) string {
	b := []byte(s)
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return string(b)
}

// shift adds delta to a zero padded number, staying within its width.
func shift(number string, delta int) (string, bool) {
	n, err := strconv.Atoi(number)
	if err != nil {
		return "", false
	}
	n += delta
	if n < 0 {
		return "", false
	}
	out := lottery.PadDigits(strconv.Itoa(n), len(number))
	if len(out) != len(number) {
		return "", false
	}
	return out, true
}
