// Package availability resolves whether a restaurant is open.
//
// Three schedule authorities feed the resolver, most specific first:
//
//  1. ClosureRange: full-day closures are terminal; partial closures block a
//     time window on each day in range but leave the rest of the day open.
//  2. SpecialDay: a closed special day is terminal; otherwise its hours
//     replace the regular shifts for that date.
//  3. RegularShift: every shift for the date's weekday.
//
// Partial-closure windows are subtracted from whichever hours steps 2 and 3
// produced, in IsOpenAt, EnumerateSlots and NextOpen alike. A shift whose
// close time is earlier than its open time runs past midnight into the next
// calendar day.
//
// Everything here is pure computation over a Schedule value.
package availability
