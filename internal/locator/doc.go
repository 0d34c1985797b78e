// Package locator finds reference images on the live screen and acts on them.
//
// Every search is a bounded poll: the template key resolves to an ordered
// list of candidate images, each pass tries the candidates in order, and the
// first one that matches ends the search. Passes repeat until the timeout
// expires or the stop signal is raised.
//
// Tunables (confidence, debounce and action delays, typing interval) are
// read from the settings source at the start of every pass, so a settings
// save applies to the next search without a restart.
//
// A template that is not found is an ordinary outcome and is reported as a
// boolean or Outcome, never as an error. Capture or comparison faults are
// handled by the configured error policy.
package locator
