// Package api exposes the task lifecycle over HTTP. It decodes and validates
// requests, calls the engine, tracker, monitor and scheduler, and maps their
// errors onto status codes without leaking internal detail.
package api
