package services

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/khobz-app/checkout/internal/domain"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return recorder
}

func endedSpan(recorder *tracetest.SpanRecorder, name string) (sdktrace.ReadOnlySpan, bool) {
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span, true
		}
	}
	return nil, false
}

func TestRecalculateEmitsSpan(t *testing.T) {
	recorder := withSpanRecorder(t)

	backend := &fakeCalculationBackend{
		respond: func(CalculateOrderRequest) (CalculateOrderResponse, error) {
			return CalculateOrderResponse{Subtotal: 19, Total: 21.5, DeliveryFee: 2.5}, nil
		},
	}
	co := newCalcCheckout(t, backend)
	seedDelivery(co)

	co.Recalculate(context.Background())

	span, ok := endedSpan(recorder, "checkout.recalculate")
	if !ok {
		t.Fatalf("no checkout.recalculate span recorded, got %d spans", len(recorder.Ended()))
	}
	if span.Status().Code == codes.Error {
		t.Fatalf("span status = %v, want non-error", span.Status())
	}
}

func TestPlaceEmitsSpanWithError(t *testing.T) {
	recorder := withSpanRecorder(t)

	backend := &fakeOrderBackend{
		accepting: true,
		create: func(int) (PlacedOrder, error) {
			return PlacedOrder{}, errors.New("connection timeout")
		},
	}
	placer, _ := newPlacer(t, OrderPlacerDeps{Orders: backend, Attempts: 1})
	session := readySession(t, "user-1")

	if _, err := placer.Place(context.Background(), session, PlaceOptions{PaymentMethod: domain.PaymentCash}); err == nil {
		t.Fatal("expected placement failure")
	}

	span, ok := endedSpan(recorder, "checkout.place_order")
	if !ok {
		t.Fatalf("no checkout.place_order span recorded, got %d spans", len(recorder.Ended()))
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("span status = %v, want error", span.Status())
	}
}
