package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/upstream"
)

func TestTranslateUpstreamErrEchoes4xxStatus(t *testing.T) {
	err := &upstream.StatusError{Status: http.StatusUnauthorized, Err: fmt.Errorf("upstream: unauthorized")}
	ge := translateUpstreamErr(err, context.Background())
	assert.Equal(t, gatewayerr.UpstreamHTTPError, ge.Kind)
	assert.Equal(t, http.StatusUnauthorized, ge.Status)
}

func TestTranslateUpstreamErrCollapses5xxToBadGateway(t *testing.T) {
	err := &upstream.StatusError{Status: http.StatusServiceUnavailable, Err: fmt.Errorf("upstream: unavailable")}
	ge := translateUpstreamErr(err, context.Background())
	assert.Equal(t, http.StatusBadGateway, ge.Status)
}

func TestTranslateUpstreamErrReportsTimeoutOnDeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	ge := translateUpstreamErr(fmt.Errorf("upstream: request canceled"), ctx)
	assert.Equal(t, gatewayerr.UpstreamTimeout, ge.Kind)
}

func TestTranslateUpstreamErrDefaultsToBadGatewayForUnknownError(t *testing.T) {
	ge := translateUpstreamErr(fmt.Errorf("connection reset"), context.Background())
	assert.Equal(t, http.StatusBadGateway, ge.Status)
}
