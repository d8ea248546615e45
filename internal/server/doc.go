// Package server exposes the conversion pipeline over HTTP. Uploads start
// asynchronous jobs; clients poll job status, stream progress over a
// websocket, and download the finished artifact. Terminal jobs age out of
// memory while the ledger keeps the durable record.
package server
