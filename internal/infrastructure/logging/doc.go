// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Components receive a *zap.Logger scoped with Component and then attach
// session_id / command_id fields as work flows through them:
//
//	logger := logging.NewDefault()
//	log := logger.Component("session").With(zap.String("session_id", id))
//	log.Info("command started", zap.String("command_id", cmdID))
package logging
