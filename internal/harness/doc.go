// Package harness runs deployment scenarios against a fake chain.
//
// A scenario names a module, a sequence of deploy and wipe steps made
// against one deployment directory, and assertions on the journal left
// behind. It checks resume behavior end to end: a step deploys the module
// through the same path the CLI uses, so a second step resumes from what the
// first recorded.
//
// # Scenario Format
//
//	name: counter_resume
//	description: "A second deploy resumes and has nothing to do"
//	module: |
//	  modules: Counter: futures: {
//	    Counter: {kind: "contract", args: [{param: "start", default: 1}]}
//	    inc: {kind: "call", contract: "Counter", function: "inc", args: [2]}
//	  }
//	parameters:
//	  Counter:
//	    start: 5
//	backend: jsonl
//	steps:
//	  - expect: {status: SUCCESSFUL_DEPLOYMENT}
//	  - revert: simulation
//	    expect: {status: EXECUTION_ERROR, failed: ["Counter:inc"]}
//	  - wipe: "Counter:inc"
//	assertions:
//	  - type: journal_count
//	    message: RUN_START
//	    count: 2
//	  - type: final_status
//	    future: "Counter:inc"
//	    status: NONE
//
// # Assertion Types
//
//   - journal_contains: a message type was recorded for a future
//   - journal_order: the first message of a type appears for futures in order
//   - journal_count: a message type appears exactly N times
//   - final_status: a future's status after replaying the journal
//
// # Determinism
//
// Futures run one at a time on a fake clock with a fixed run id, so a
// scenario writes the same journal on every execution and its trace can be
// compared against a golden file with RunWithGolden.
package harness
