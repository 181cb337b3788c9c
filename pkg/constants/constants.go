package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	AppKey            ContextKey = "app"
	LoggerKey         ContextKey = "logger"
	ParamsKey         ContextKey = "params"
	TxKey             ContextKey = "tx"
	PoolKey           ContextKey = "pool"
	RequestStart      ContextKey = "requestStart"
	RequestContextKey ContextKey = "requestContext"
	RequestIDKey      ContextKey = "requestID"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
