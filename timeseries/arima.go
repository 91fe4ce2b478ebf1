// Package timeseries implements ARIMA forecasting over univariate
// series: d-fold differencing, AR and MA coefficients fitted by
// conditional least squares, and forecasts re-integrated back to the
// original scale.
package timeseries

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/harborgrid-justin/phantom-spire-sub003/core/model"
	"github.com/harborgrid-justin/phantom-spire-sub003/core/parallel"
	"github.com/harborgrid-justin/phantom-spire-sub003/internal/params"
	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// ARIMAOptions holds the (p, d, q) order of the model.
type ARIMAOptions struct {
	P int // autoregressive lags
	D int // differencing order
	Q int // moving-average lags
}

// DefaultARIMAOptions returns ARIMA(1, 1, 1).
func DefaultARIMAOptions() ARIMAOptions {
	return ARIMAOptions{P: 1, D: 1, Q: 1}
}

// ARIMA is an autoregressive integrated moving-average forecaster. MA
// terms are estimated with the Hannan-Rissanen two-stage procedure: a
// long AR fit supplies residual estimates, then AR and MA coefficients
// are solved jointly by least squares.
type ARIMA struct {
	model.BaseEstimator

	opts ARIMAOptions

	// Fitted state, exported for gob serialization. LagTail and
	// ResidualTail are the last P differenced values and last Q
	// residuals; DiffTails[k] is the final value of the k-times
	// differenced series, used to re-integrate forecasts.
	Intercept    float64
	ARCoef       []float64
	MACoef       []float64
	LagTail      []float64
	ResidualTail []float64
	DiffTails    []float64
	NObserved    int
}

// NewARIMA creates an ARIMA with the given order.
func NewARIMA(opts ARIMAOptions) *ARIMA {
	return &ARIMA{opts: opts}
}

// ARIMAFromParams builds an ARIMA from a free-form hyperparameter map,
// rejecting unknown keys.
func ARIMAFromParams(hyperparams map[string]interface{}) (*ARIMA, error) {
	opts := DefaultARIMAOptions()
	for key, value := range hyperparams {
		switch key {
		case "p":
			v, ok := params.Int(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmARIMA, key, "must be a non-negative integer", value)
			}
			opts.P = v
		case "d":
			v, ok := params.Int(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmARIMA, key, "must be a non-negative integer", value)
			}
			opts.D = v
		case "q":
			v, ok := params.Int(value)
			if !ok || v < 0 {
				return nil, errors.NewHyperparameterError(model.AlgorithmARIMA, key, "must be a non-negative integer", value)
			}
			opts.Q = v
		default:
			return nil, errors.NewHyperparameterError(model.AlgorithmARIMA, key, "unknown hyperparameter", value)
		}
	}
	return NewARIMA(opts), nil
}

// FitSeries fits the model to a univariate series.
func (a *ARIMA) FitSeries(series []float64) error {
	return a.FitSeriesContext(context.Background(), series)
}

// FitSeriesContext fits with a cancellation check before the least
// squares solve.
func (a *ARIMA) FitSeriesContext(ctx context.Context, series []float64) error {
	const op = "ARIMA.Fit"

	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewInputErrorAt(op, "series contains a non-finite value", i)
		}
	}

	p, d, q := a.opts.P, a.opts.D, a.opts.Q
	minLen := d + p + q + 2
	if len(series) < minLen {
		return errors.NewInputError(op, "series too short for the requested order")
	}

	// Difference d times, recording the tail of each level for
	// re-integration.
	w := append([]float64(nil), series...)
	diffTails := make([]float64, d)
	for k := 0; k < d; k++ {
		diffTails[k] = w[len(w)-1]
		w = difference(w)
	}

	if err := parallel.CheckCancel(ctx, op); err != nil {
		return err
	}

	// Stage one: residual estimates from a long AR fit when MA terms are
	// requested.
	var residuals []float64
	if q > 0 {
		longOrder := p + q + 2
		if longOrder > len(w)/2 {
			longOrder = len(w) / 2
		}
		if longOrder < 1 {
			longOrder = 1
		}
		arCoef, arIntercept, err := fitARLeastSquares(op, w, longOrder)
		if err != nil {
			return err
		}
		residuals = make([]float64, len(w))
		for t := longOrder; t < len(w); t++ {
			pred := arIntercept
			for i := 0; i < longOrder; i++ {
				pred += arCoef[i] * w[t-1-i]
			}
			residuals[t] = w[t] - pred
		}
	}

	// Stage two: joint least squares on AR lags and lagged residuals.
	maxLag := p
	if q > maxLag {
		maxLag = q
	}
	rows := len(w) - maxLag
	cols := 1 + p + q
	if rows < cols {
		return errors.NewInputError(op, "series too short for the requested order")
	}

	design := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for t := maxLag; t < len(w); t++ {
		r := t - maxLag
		design.Set(r, 0, 1)
		for i := 0; i < p; i++ {
			design.Set(r, 1+i, w[t-1-i])
		}
		for j := 0; j < q; j++ {
			design.Set(r, 1+p+j, residuals[t-1-j])
		}
		target.SetVec(r, w[t])
	}

	var qr mat.QR
	qr.Factorize(design)
	var solution mat.Dense
	if err := qr.SolveTo(&solution, false, target); err != nil {
		return errors.NewNumericalError(op, "least squares solve failed on a degenerate design")
	}

	intercept := solution.At(0, 0)
	arCoef := make([]float64, p)
	for i := 0; i < p; i++ {
		arCoef[i] = solution.At(1+i, 0)
	}
	maCoef := make([]float64, q)
	for j := 0; j < q; j++ {
		maCoef[j] = solution.At(1+p+j, 0)
	}

	// Final one-step residuals under the fitted coefficients.
	finalResiduals := make([]float64, len(w))
	for t := maxLag; t < len(w); t++ {
		pred := intercept
		for i := 0; i < p; i++ {
			pred += arCoef[i] * w[t-1-i]
		}
		for j := 0; j < q; j++ {
			pred += maCoef[j] * finalResiduals[t-1-j]
		}
		finalResiduals[t] = w[t] - pred
	}

	lagTail := make([]float64, p)
	for i := 0; i < p; i++ {
		lagTail[i] = w[len(w)-1-i]
	}
	residualTail := make([]float64, q)
	for j := 0; j < q; j++ {
		residualTail[j] = finalResiduals[len(finalResiduals)-1-j]
	}

	a.Intercept = intercept
	a.ARCoef = arCoef
	a.MACoef = maCoef
	a.LagTail = lagTail
	a.ResidualTail = residualTail
	a.DiffTails = diffTails
	a.NObserved = len(series)
	a.SetFitted()
	return nil
}

// Forecast extends the series horizon steps ahead and returns the
// forecasts on the original scale.
func (a *ARIMA) Forecast(horizon int) ([]float64, error) {
	const op = "ARIMA.Forecast"
	if !a.IsFitted() {
		return nil, errors.NewNotFittedError("ARIMA", "Forecast")
	}
	if horizon <= 0 {
		return nil, errors.NewInputError(op, "horizon must be positive")
	}

	lags := append([]float64(nil), a.LagTail...)
	resids := append([]float64(nil), a.ResidualTail...)

	forecasts := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		pred := a.Intercept
		for i, c := range a.ARCoef {
			pred += c * lags[i]
		}
		for j, c := range a.MACoef {
			pred += c * resids[j]
		}
		forecasts[h] = pred

		if len(lags) > 0 {
			copy(lags[1:], lags[:len(lags)-1])
			lags[0] = pred
		}
		// Future shocks are unknown and taken as zero.
		if len(resids) > 0 {
			copy(resids[1:], resids[:len(resids)-1])
			resids[0] = 0
		}
	}

	// Undo each differencing level, innermost first.
	for k := len(a.DiffTails) - 1; k >= 0; k-- {
		cum := a.DiffTails[k]
		for i, v := range forecasts {
			cum += v
			forecasts[i] = cum
		}
	}
	return forecasts, nil
}

// GetParams returns the model order.
func (a *ARIMA) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"p": a.opts.P,
		"d": a.opts.D,
		"q": a.opts.Q,
	}
}

// difference returns the first difference of the series.
func difference(series []float64) []float64 {
	out := make([]float64, len(series)-1)
	for i := range out {
		out[i] = series[i+1] - series[i]
	}
	return out
}

// fitARLeastSquares fits an AR(order) model with intercept by least
// squares.
func fitARLeastSquares(op string, w []float64, order int) (coef []float64, intercept float64, err error) {
	rows := len(w) - order
	cols := 1 + order
	if rows < cols {
		return nil, 0, errors.NewInputError(op, "series too short for the requested order")
	}

	design := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for t := order; t < len(w); t++ {
		r := t - order
		design.Set(r, 0, 1)
		for i := 0; i < order; i++ {
			design.Set(r, 1+i, w[t-1-i])
		}
		target.SetVec(r, w[t])
	}

	var qr mat.QR
	qr.Factorize(design)
	var solution mat.Dense
	if err := qr.SolveTo(&solution, false, target); err != nil {
		return nil, 0, errors.NewNumericalError(op, "least squares solve failed on a degenerate design")
	}

	intercept = solution.At(0, 0)
	coef = make([]float64, order)
	for i := range coef {
		coef[i] = solution.At(1+i, 0)
	}
	return coef, intercept, nil
}
