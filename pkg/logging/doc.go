// Package logging provides structured logging configuration for faultd.
//
// This package wraps log/slog to provide consistent logging across all faultd
// components. It supports configurable log levels, output formats, file
// output, and shipping to Loki for downstream log-pipeline consumers.
//
// # Usage
//
// Create a logger with desired configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//
//	logger.Info("generation started", "pattern", "random", "interval", 2.0)
//	logger.Error("injection failed", "error", err)
//
// # Output Formats
//
//   - Text: Human-readable format for development
//   - JSON: Structured format for log aggregation systems
//
// Since faultd exists to feed monitoring pipelines, JSON is the default in
// served configurations; every injection is logged with component, service,
// operation and pattern attributes that downstream detectors key on.
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or via a setter.
// If no logger is provided, use logging.Nop() for a no-op logger.
package logging
