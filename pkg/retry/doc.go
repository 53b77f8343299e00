// Package retry holds the per-target attempt state machine.
//
// Every target starts Pending with a budget of DefaultRetries. Each attempt
// is classified into an Outcome and fed to AttemptState.Next, which returns
// the Action for the caller and the state for the next attempt:
//
//	state := retry.Initial(target).Begin()
//	for {
//		resp, err := fetch(state.Target.ID, state.UseAlternateSource)
//		outcome := retry.Classify(resp.StatusCode, resp.Body != nil, err)
//		d := state.Next(outcome)
//		switch d.Action {
//		case retry.ActionSucceed, retry.ActionFail:
//			return
//		}
//		state = d.Next
//	}
//
// Rate-limited attempts do not spend budget. The final retry always uses
// the alternate mirror, so a target gets at most four attempts, three on the
// primary mirror and one on the alternate.
//
// Callers do not loop in practice: each attempt is its own queue task and
// the next state is resubmitted, which keeps retries off the call stack.
package retry
