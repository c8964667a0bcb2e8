package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindMapping(t *testing.T) {
	require.Equal(t, "not_found", Kind(NotFoundf("message %s", "m1")))
	require.Equal(t, "unauthorized", Kind(Unauthorizedf("nope")))
	require.Equal(t, "invalid_state", Kind(InvalidStatef("window closed")))
	require.Equal(t, "persistence_failure", Kind(Persistence(errors.New("disk full"), "save failed")))
	require.Equal(t, "persistence_failure", Kind(errors.New("anything else")))
	require.Empty(t, Kind(nil))
}

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusNotFound, HTTPStatus(NotFoundf("x")))
	require.Equal(t, http.StatusForbidden, HTTPStatus(Unauthorizedf("x")))
	require.Equal(t, http.StatusConflict, HTTPStatus(InvalidStatef("x")))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(Persistence(errors.New("x"), "y")))
	require.Equal(t, http.StatusOK, HTTPStatus(nil))
}

func TestPersistenceKeepsContext(t *testing.T) {
	err := Persistence(errors.New("pebble: write stall"), "failed to persist message")
	require.ErrorIs(t, err, ErrPersistence)
	require.Contains(t, err.Error(), "failed to persist message")
	require.Contains(t, err.Error(), "write stall")
	require.Nil(t, Persistence(nil, "ignored"))
}
