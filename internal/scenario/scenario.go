// Package scenario parses and drives the textual scenario format used
// to exercise the matching engine end to end: one record per line,
// dispatched by its leading token (spec §6).
//
// This is a Go rendering of the original's InputHandler
// (original_source/OrderbookTest/test.cpp) — line dispatch on the
// first token, a Split/ToNumber-style helper pair — reworked around
// bufio.Scanner and strconv rather than std::from_chars/string_view.
package scenario

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lobengine/internal/common"
	"lobengine/internal/engine"
)

// ErrAssertionFailed is returned by Assert (and RunAndAssert) when the
// scenario's terminal R
// line does not match the book shape the engine actually reached. It
// is distinct from a parse error: a parse error means the scenario
// file itself is malformed, an assertion failure means the engine's
// behavior diverged from what the file predicted.
var ErrAssertionFailed = errors.New("scenario: terminal result assertion failed")

// Result is the expected terminal book shape from an R line.
type Result struct {
	All  int
	Bids int
	Asks int
}

type action interface {
	apply(e *engine.Engine) []common.Trade
}

type addAction struct {
	side  common.Side
	kind  common.Kind
	price common.Price
	qty   common.Quantity
	id    common.OrderID
}

func (a addAction) apply(e *engine.Engine) []common.Trade {
	return e.Add(common.NewOrder(a.kind, a.id, a.side, a.price, a.qty))
}

type modifyAction struct {
	id    common.OrderID
	side  common.Side
	price common.Price
	qty   common.Quantity
}

func (a modifyAction) apply(e *engine.Engine) []common.Trade {
	return e.Modify(a.id, a.side, a.price, a.qty)
}

type cancelAction struct {
	id common.OrderID
}

func (a cancelAction) apply(e *engine.Engine) []common.Trade {
	e.Cancel(a.id)
	return nil
}

// Scenario is a parsed sequence of actions plus the expected terminal
// result, ready to be driven against a fresh engine.
type Scenario struct {
	actions []action
	result  Result
}

// Parse reads a scenario file: zero or more A/M/C lines followed by
// exactly one terminal R line. Blank lines are ignored wherever they
// appear. The R line must be the last non-empty line in the file; any
// record — including a second R — found after it is a parse error,
// per spec §6.
func Parse(r io.Reader) (*Scenario, error) {
	s := &Scenario{}
	seenResult := false

	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		if seenResult {
			return nil, fmt.Errorf("scenario: line %d: record after terminal R line", lineNo)
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "A":
			act, err := parseAdd(fields)
			if err != nil {
				return nil, fmt.Errorf("scenario: line %d: %w", lineNo, err)
			}
			s.actions = append(s.actions, act)
		case "M":
			act, err := parseModify(fields)
			if err != nil {
				return nil, fmt.Errorf("scenario: line %d: %w", lineNo, err)
			}
			s.actions = append(s.actions, act)
		case "C":
			act, err := parseCancel(fields)
			if err != nil {
				return nil, fmt.Errorf("scenario: line %d: %w", lineNo, err)
			}
			s.actions = append(s.actions, act)
		case "R":
			result, err := parseResult(fields)
			if err != nil {
				return nil, fmt.Errorf("scenario: line %d: %w", lineNo, err)
			}
			s.result = result
			seenResult = true
		default:
			return nil, fmt.Errorf("scenario: line %d: unknown record token %q", lineNo, fields[0])
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if !seenResult {
		return nil, errors.New("scenario: no terminal R line specified")
	}
	return s, nil
}

func parseAdd(fields []string) (addAction, error) {
	if len(fields) != 6 {
		return addAction{}, fmt.Errorf("A record wants 5 fields, got %d", len(fields)-1)
	}
	side, err := parseSide(fields[1])
	if err != nil {
		return addAction{}, err
	}
	kind, err := parseKind(fields[2])
	if err != nil {
		return addAction{}, err
	}
	price, err := parseNumber(fields[3])
	if err != nil {
		return addAction{}, fmt.Errorf("price: %w", err)
	}
	qty, err := parseNumber(fields[4])
	if err != nil {
		return addAction{}, fmt.Errorf("quantity: %w", err)
	}
	id, err := parseNumber(fields[5])
	if err != nil {
		return addAction{}, fmt.Errorf("order id: %w", err)
	}
	return addAction{side: side, kind: kind, price: common.Price(price), qty: common.Quantity(qty), id: common.OrderID(id)}, nil
}

func parseModify(fields []string) (modifyAction, error) {
	if len(fields) != 5 {
		return modifyAction{}, fmt.Errorf("M record wants 4 fields, got %d", len(fields)-1)
	}
	id, err := parseNumber(fields[1])
	if err != nil {
		return modifyAction{}, fmt.Errorf("order id: %w", err)
	}
	side, err := parseSide(fields[2])
	if err != nil {
		return modifyAction{}, err
	}
	price, err := parseNumber(fields[3])
	if err != nil {
		return modifyAction{}, fmt.Errorf("price: %w", err)
	}
	qty, err := parseNumber(fields[4])
	if err != nil {
		return modifyAction{}, fmt.Errorf("quantity: %w", err)
	}
	return modifyAction{id: common.OrderID(id), side: side, price: common.Price(price), qty: common.Quantity(qty)}, nil
}

func parseCancel(fields []string) (cancelAction, error) {
	if len(fields) != 2 {
		return cancelAction{}, fmt.Errorf("C record wants 1 field, got %d", len(fields)-1)
	}
	id, err := parseNumber(fields[1])
	if err != nil {
		return cancelAction{}, fmt.Errorf("order id: %w", err)
	}
	return cancelAction{id: common.OrderID(id)}, nil
}

func parseResult(fields []string) (Result, error) {
	if len(fields) != 4 {
		return Result{}, fmt.Errorf("R record wants 3 fields, got %d", len(fields)-1)
	}
	all, err := parseNumber(fields[1])
	if err != nil {
		return Result{}, fmt.Errorf("all count: %w", err)
	}
	bids, err := parseNumber(fields[2])
	if err != nil {
		return Result{}, fmt.Errorf("bid count: %w", err)
	}
	asks, err := parseNumber(fields[3])
	if err != nil {
		return Result{}, fmt.Errorf("ask count: %w", err)
	}
	return Result{All: int(all), Bids: int(bids), Asks: int(asks)}, nil
}

func parseSide(s string) (common.Side, error) {
	switch s {
	case "B":
		return common.Buy, nil
	case "S":
		return common.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseKind(s string) (common.Kind, error) {
	switch s {
	case "GoodTillCancel":
		return common.GoodTillCancel, nil
	case "FillAndKill":
		return common.FillAndKill, nil
	case "FillOrKill":
		return common.FillOrKill, nil
	case "GoodForDay":
		return common.GoodForDay, nil
	case "Market":
		return common.Market, nil
	default:
		return 0, fmt.Errorf("unknown order kind %q", s)
	}
}

// parseNumber rejects negative values the way the original's ToNumber
// does (it throws on value < 0 before the unsigned cast), since every
// numeric field in this grammar is a count, price, or id.
func parseNumber(s string) (int64, error) {
	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("%q is negative", s)
	}
	return value, nil
}

// Run drives every parsed action against e in order and returns every
// trade produced, in emission order, so callers can assert trade
// contents in addition to the terminal shape (spec §8 open question).
func (s *Scenario) Run(e *engine.Engine) []common.Trade {
	var trades []common.Trade
	for _, act := range s.actions {
		trades = append(trades, act.apply(e)...)
	}
	return trades
}

// Assert compares e's current book shape against the scenario's
// terminal R line, returning ErrAssertionFailed (wrapped with the
// mismatch detail) if they diverge.
func (s *Scenario) Assert(e *engine.Engine) error {
	bids, asks := e.Snapshot()
	all := e.Size()
	if all == s.result.All && len(bids) == s.result.Bids && len(asks) == s.result.Asks {
		return nil
	}
	return fmt.Errorf("%w: want {all=%d bids=%d asks=%d}, got {all=%d bids=%d asks=%d}",
		ErrAssertionFailed, s.result.All, s.result.Bids, s.result.Asks, all, len(bids), len(asks))
}

// RunAndAssert is the common case: drive every action, then assert the
// terminal shape, returning the trade stream and any assertion error.
func (s *Scenario) RunAndAssert(e *engine.Engine) ([]common.Trade, error) {
	trades := s.Run(e)
	return trades, s.Assert(e)
}
