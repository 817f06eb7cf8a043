package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestConstructorKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("failed to load habit", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, StatusInternal, StatusOf(err))
}

func TestIsMatchesCodeAndReason(t *testing.T) {
	sentinel := UnprocessableEntity("insufficient balance", nil, WithReason(ReasonInsufficientBalance))
	err := fmt.Errorf("purchase: %w", UnprocessableEntity("need 50 points", nil, WithReason(ReasonInsufficientBalance)))

	require.ErrorIs(t, err, sentinel)
	require.NotErrorIs(t, err, UnprocessableEntity("cap", nil, WithReason(ReasonFreezeCapReached)))
	require.ErrorIs(t, err, New(StatusUnprocessableEntity, ""))
	require.Equal(t, ReasonInsufficientBalance, ReasonOf(err))
}

func TestJSONHidesCause(t *testing.T) {
	err := Conflict("habit already completed today", errors.New("UNIQUE constraint failed"), WithReason(ReasonHabitAlreadyCompleted))

	var be BaseError
	require.True(t, errors.As(err, &be))

	body := be.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, "habit already completed today", body["message"])
	require.Equal(t, ReasonHabitAlreadyCompleted, body["reason"])
	require.Equal(t, http.StatusConflict, be.Code.HTTPStatus())
}

func TestToGRPCError(t *testing.T) {
	require.Nil(t, ToGRPCError(nil))

	st, ok := status.FromError(ToGRPCError(NotFound("habit not found", nil)))
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
	require.Equal(t, "habit not found", st.Message())

	st, _ = status.FromError(ToGRPCError(context.DeadlineExceeded))
	require.Equal(t, codes.DeadlineExceeded, st.Code())

	st, _ = status.FromError(ToGRPCError(errors.New("plain")))
	require.Equal(t, codes.Internal, st.Code())
}

func TestToGRPCErrorCarriesReasonAndFields(t *testing.T) {
	err := ValidationFailed("name is required", nil,
		WithReason(ReasonHabitInactive),
		WithDetails(Detail{Field: "name", Message: "required"}))

	st, ok := status.FromError(ToGRPCError(err))
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())

	var (
		reason string
		fields []string
	)
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.ErrorInfo:
			reason = v.GetReason()
		case *errdetails.BadRequest:
			for _, f := range v.GetFieldViolations() {
				fields = append(fields, f.GetField())
			}
		}
	}
	require.Equal(t, ReasonHabitInactive, reason)
	require.Equal(t, []string{"name"}, fields)
}
