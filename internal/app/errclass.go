package app

import (
	"errors"
	"regexp"
	"strconv"

	"futuresMegaBot/internal/ports"
)

// ErrorClass is the recoverable category of an order rejection.
type ErrorClass int

const (
	ErrorClassOther ErrorClass = iota
	ErrorClassPositionValueLimit
	ErrorClassTrailingDistance
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassPositionValueLimit:
		return "position_value_limit"
	case ErrorClassTrailingDistance:
		return "trailing_distance"
	}
	return "other"
}

// OrderErrorInfo is the classification of an order placement error.
type OrderErrorInfo struct {
	Class ErrorClass
	// MaxDistance is the largest trailing distance the exchange accepts,
	// parsed from the rejection text. Zero when it could not be parsed.
	MaxDistance float64
}

var positionValueCodes = map[int64]bool{
	80001: true,
	-2027: true,
}

var (
	positionValueRe = regexp.MustCompile(`(?i)maximum (allowable )?position( value)?`)
	trailingRe      = regexp.MustCompile(`(?i)(callback|price ?rate|trailing)`)
	maximumRe       = regexp.MustCompile(`(?i)max(imum)?`)
	maxValueRe      = regexp.MustCompile(`(?i)max(?:imum)?[^0-9]*?([0-9]+(?:\.[0-9]+)?)`)
)

// ClassifyOrderError inspects an order placement error for the rejections
// the executor knows how to recover from.
func ClassifyOrderError(err error) OrderErrorInfo {
	if err == nil {
		return OrderErrorInfo{Class: ErrorClassOther}
	}

	msg := err.Error()
	var apiErr *ports.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
		if positionValueCodes[apiErr.Code] {
			return OrderErrorInfo{Class: ErrorClassPositionValueLimit}
		}
	}

	switch {
	case errors.Is(err, ports.ErrPositionValueLimit), positionValueRe.MatchString(msg):
		return OrderErrorInfo{Class: ErrorClassPositionValueLimit}
	case errors.Is(err, ports.ErrTrailingDistance),
		trailingRe.MatchString(msg) && maximumRe.MatchString(msg):
		return OrderErrorInfo{Class: ErrorClassTrailingDistance, MaxDistance: parseMaxValue(msg)}
	}
	return OrderErrorInfo{Class: ErrorClassOther}
}

func parseMaxValue(msg string) float64 {
	m := maxValueRe.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}
