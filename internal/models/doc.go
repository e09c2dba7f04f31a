// Package models defines the data contracts exchanged with the sqlgym REST API and push channel.
//
// The package contains two categories of types:
//
// 1. Request/response shapes for the REST API
//   - [LoginRequest], [AuthResponse] : credential exchange
//   - [UserInfo] : the authenticated user's profile
//   - [Question], [QuestionPage] : practice questions
//   - [SubmitRequest], [SubmitResponse], [Submission] : solution submission and history
//   - [LeaderboardEntry], [Contest] : ranking and contest listings
//
// 2. Push messages
//   - [Verdict] : the asynchronous judging result for one submission, delivered on a per-user topic
//
// Types are plain JSON carriers. Only [Verdict] is validated, because a malformed verdict must be dropped
// before it reaches a handler.
package models
