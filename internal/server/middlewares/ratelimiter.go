package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tradedata/s3sync/internal/server/handlers/api"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// RateLimiter limits requests per client IP. formattedRate uses the limiter notation, e.g. "600-M".
func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, err
	}
	instance := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(
		instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.PureJSON(http.StatusTooManyRequests, api.APIError{
				Code:    api.CodeRateLimited,
				Message: "rate limit exceeded",
			})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			c.PureJSON(http.StatusInternalServerError, api.APIError{
				Code:    api.CodeInternalError,
				Message: err.Error(),
			})
		}),
	), nil
}
