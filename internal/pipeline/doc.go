package pipeline

// Package pipeline implements supervision of the two-stage DMARC
// processing pipeline.
//
// Overview
// The Supervisor performs one strictly sequential pass per invocation. The
// external scheduler (cron) is responsible for triggering it and for not
// overlapping runs; an optional lock file closes that gap when configured.
//
// Runner is a thin, opinionated wrapper around os/exec:
//   - starts the process with a bounded timeout
//   - captures stdout and stderr interleaved, line by line
//   - reports the child's exit status verbatim (128+signal when killed)
//   - errors only when the executable cannot be started at all
//
// Data flow:
//
//   Supervisor              Runner{primary}          Runner{secondary}
//       |                       |                        |
//       | Run() --------------->| exec + line capture    |
//       |<----- Result ---------|                        |
//       | exit 0: summary ------------------------------>| exec (best-effort)
//       |<------------------------------ Result ---------|
//       | exit != 0: full output -> sink, synopsis -> Notifier
//       v
//   process exit status = primary exit code
//
// Invariants:
//   - One record per physical output line; records never embed line breaks.
//   - Success path logs a bounded tail; failure path logs every line.
//   - Only the primary task's exit status reaches the process exit code.
//   - The notification synopsis is sanitized before leaving this package.
