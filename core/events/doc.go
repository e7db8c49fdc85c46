// Package events defines the typed event contract of the pipeline.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - speech.*
//   - screen.*
//   - intent.*
//   - answer.*
//   - system.*
//
// Semantics used across the package:
//
//   - Text: finalized, immutable text payload.
//   - Chunk: append-only streamed text piece emitted in stream order.
//   - Started/Done: lifecycle boundaries of one answer cycle; Done is
//     published exactly once per cycle, including on the error path.
//   - AnswerID: correlates every chunk with its cycle so overlapping cycles
//     can never cross-talk.
//
// speech events
//
//   - SpeechText (speech.text): one transcribed utterance; IsSelf marks the
//     local speaker.
//
// screen events
//
//   - ScreenContext (screen.context): text extracted from the latest
//     qualifying screen change. Latest wins; no history is carried.
//
// intent events
//
//   - IntentQuestion (intent.question): a classified, normalized question
//     with the classifier's confidence. Rejections produce no event.
//
// answer events
//
//   - AnswerStarted (answer.started): an answer cycle began for a question.
//   - AnswerChunk (answer.chunk): streamed answer text piece.
//   - AnswerDone (answer.done): terminal marker for the cycle.
//
// system events
//
//   - SystemStatus (system.status): operational notices for viewers.
package events
