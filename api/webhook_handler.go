package api

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"wagerbook/models"
	"wagerbook/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HeaderSignature carries the hex HMAC-SHA512 of the raw webhook body
const HeaderSignature = "X-Signature"

// SignWebhook returns the signature a provider sends for body
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// fiatWebhook applies a payment provider event. Requests with a bad signature
// are answered 200 and dropped.
func (s *Server) fiatWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !validSignature(s.config.Fiat.WebhookSecret, body, c.GetHeader(HeaderSignature)) {
		log.WithField("ip", c.ClientIP()).Warn("Dropping fiat webhook with invalid signature")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var event models.FiatEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondInvalid(c, err)
		return
	}

	if err := s.services.Reconciler.ApplyFiatEvent(c.Request.Context(), event); err != nil {
		// Non-2xx makes the provider redeliver
		if service.KindOf(err) == service.KindTransient || service.KindOf(err) == service.KindUnknown {
			respondError(c, err)
			return
		}
		log.WithFields(log.Fields{
			"event":     event.Event,
			"reference": event.Data.Reference,
			"error":     err,
		}).Warn("Fiat webhook rejected")
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
