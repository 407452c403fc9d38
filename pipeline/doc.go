// Package pipeline implements the built-in key→value functions that lower a
// build request from a label to a materialized artifact:
//
//	ConfigurationKey    → ConfigurationValue    (fragment composition)
//	ConfiguredTargetKey → ConfiguredTargetValue (delegate + dependency closure)
//	EvaluatedTargetKey  → EvaluatedTargetValue  (rule evaluation → providers)
//	ArtifactKey         → ArtifactValue         (action lookup + input closure)
//	ActionExecutionKey  → ActionExecutionValue  (executor dispatch)
//
// Each stage is a separate, independently cacheable engine function, so a
// change that only affects a late stage reuses every earlier one.
//
// Policies enforced here:
//   - at most one rule invocation per configured target (the rule runs
//     inside the memoized EvaluatedTargetKey function)
//   - at most one action execution per (spec, input DataIDs) tuple, by
//     function-cache memoization at the ActionExecutionKey layer
//   - action output paths are namespaced by configuration hash and label,
//     so equal relative paths under different targets never collide
//
// The application supplies three delegates: a ConfiguredTargetDelegate that
// resolves labels into configured targets and their dependency labels, a
// RuleLookup that maps target types to rules, and an Executor. Install wires
// the five functions into an engine.FunctionMap.
package pipeline
