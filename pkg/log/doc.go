// Package log captures a machine-readable trace of web channel traffic.
//
// Protocol capture is separate from operational logging (slog): a Logger
// receives one Event per encoded frame, decoded message, lifecycle change or
// error, from whichever layer observed it.
//
//	// Console while developing
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture, readable with webchannel-log
//	fl, _ := log.NewFileLogger("/tmp/channel.wclog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Capture files are a plain sequence of CBOR-encoded events with integer
// keys. Reader streams them back with an optional Filter.
package log
