// Package sidetable holds precomputed branch resolution for validated
// function bodies.
//
// Every instruction of a compiled function has a dense position. A Table
// is a two-level structure: an index with one slot per position, holding
// -1 or an offset into a packed array of Entry values. Only control
// instructions get entries:
//
//   - br and br_if: one entry with the label's target.
//   - br_table: one entry per label plus the default, stored consecutively.
//   - if: taken when the condition is zero; targets the first instruction
//     of the else arm, or the matching end.
//   - else: reached when the then arm falls through; targets the end.
//
// Block and if labels target the position of their end instruction, loop
// labels target the first instruction of the loop body. Drop and Keep
// describe the operand stack adjustment: the top Keep values survive and
// the Drop values beneath them are discarded.
//
// Targets of forward labels are unknown when the branch is validated; the
// validator records entry indices and patches them at the matching end.
package sidetable
