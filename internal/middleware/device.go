package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/response"
)

// HeaderDeviceID carries the client's device fingerprint.
const HeaderDeviceID = "X-Device-ID"

// DeviceBinder claims a (quiz, student) stream for one device.
type DeviceBinder interface {
	Bind(ctx context.Context, quizID, studentID, deviceID string) (string, bool, error)
}

// ContextKeyDeviceConflict holds the pending multiple_devices attempt.
const ContextKeyDeviceConflict = "device_conflict"

// BindDevice flags a student who streams the same quiz from a second device.
// The request is never blocked. The mismatch is left in the context as a
// multiple_devices attempt; the stream handler records it once the quiz is
// known to exist.
func BindDevice(devices DeviceBinder, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "device_binding").Logger()

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		deviceID := c.GetHeader(HeaderDeviceID)
		if deviceID == "" {
			deviceID = c.Query("device_id")
		}
		if deviceID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		quizID := c.Param("quiz_id")

		bound, same, err := devices.Bind(ctx, quizID, claims.UserID, deviceID)
		if err != nil {
			log.Warn().Err(err).Str("quiz_id", quizID).Msg("Device binding unavailable")
			c.Next()
			return
		}

		if !same {
			c.Set(ContextKeyDeviceConflict, model.CheatAttempt{
				Type:        model.CheatMultipleDevices,
				Description: "stream opened from device " + deviceID + " while bound to " + bound,
			})
		}
		c.Next()
	}
}

// GetDeviceConflict returns the attempt BindDevice left for this request.
func GetDeviceConflict(c *gin.Context) (model.CheatAttempt, bool) {
	v, ok := c.Get(ContextKeyDeviceConflict)
	if !ok {
		return model.CheatAttempt{}, false
	}
	a, ok := v.(model.CheatAttempt)
	return a, ok
}
