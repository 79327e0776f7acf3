package jobxredis

import "github.com/Abraxas-365/jobrunner/pkg/errx"

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrPush     = redisErrors.Register("PUSH", errx.TypeExternal, 500, "Redis push failed")
	ErrSchedule = redisErrors.Register("SCHEDULE", errx.TypeExternal, 500, "Redis schedule failed")
	ErrReserve  = redisErrors.Register("RESERVE", errx.TypeExternal, 500, "Redis reserve failed")
	ErrAck      = redisErrors.Register("ACK", errx.TypeExternal, 500, "Redis acknowledge failed")
	ErrInFlight = redisErrors.Register("IN_FLIGHT", errx.TypeExternal, 500, "Redis in-flight scan failed")
	ErrRestore  = redisErrors.Register("RESTORE", errx.TypeExternal, 500, "Redis restore failed")
	ErrPromote  = redisErrors.Register("PROMOTE", errx.TypeExternal, 500, "Redis promote failed")
	ErrStats    = redisErrors.Register("STATS", errx.TypeExternal, 500, "Redis stats failed")
)
