// Package security validates plugin descriptors against the runtime's
// security policy and answers permission checks for the execution engine.
//
// Validation is a pure function over a descriptor. Resource-limit
// enforcement is advisory: the evaluator exposes a hook the host calls once
// per load and once per execution to apply whatever OS/process level
// constraints it chooses.
package security
