package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// StreamResult is the handle for one streaming generation. Aggregated
// events arrive over Events() in the order the aggregator produced them;
// Response() blocks until the stream ends and returns the last complete
// (non-partial) response or the terminal error.
type StreamResult struct {
	stream *ChanStream

	mu    sync.Mutex
	final *Response
	err   error

	done chan struct{}
}

func (r *StreamResult) Events() <-chan StreamEvent { return r.stream.Events() }

// Close cancels the stream and releases the underlying transport.
func (r *StreamResult) Close() error { return r.stream.Close() }

func (r *StreamResult) Response() (*Response, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.final == nil {
		return nil, nil
	}
	cp := *r.final
	return &cp, nil
}

func (r *StreamResult) setFinal(resp *Response) {
	r.mu.Lock()
	r.final = resp
	r.mu.Unlock()
}

func (r *StreamResult) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// StreamGenerate performs one streaming generation. Retry applies only to
// establishing the provider stream: once the first chunk can have been
// observed, any failure is terminal for this invocation and surfaces as
// the stream's last event, after everything already aggregated. Events
// already delivered are never rolled back.
//
// Cancelling ctx (or calling Close on the result) stops consumption
// promptly, closes the transport stream, and suppresses the end-of-stream
// summary: flushing happens only on a true end of stream.
func StreamGenerate(ctx context.Context, opts GenerateOptions) (*StreamResult, error) {
	client, req, policy, err := prepare(&opts)
	if err != nil {
		return nil, err
	}

	ctxTotal, cancelTotal := WithTimeout(ctx, opts.TimeoutTotal)
	sctx, cancel := context.WithCancel(ctxTotal)
	cancelAll := func() {
		cancel()
		cancelTotal()
	}

	out := NewChanStream(cancelAll)
	res := &StreamResult{
		stream: out,
		done:   make(chan struct{}),
	}

	log := opts.logger().With(zap.String("model", req.Model), zap.String("provider", req.Provider))
	log.Debug("generate request", zap.Bool("stream", true))

	go func() {
		defer close(res.done)
		defer cancelTotal()
		defer out.CloseSend()

		st, err := Retry(sctx, policy, opts.Sleep, nil, func() (Stream, error) {
			return client.Stream(sctx, req)
		})
		if err != nil {
			err = wrapContextError(req.Provider, err)
			out.Send(StreamEvent{Err: err})
			res.setErr(err)
			return
		}
		defer st.Close()

		agg := NewStreamAggregator()
		for {
			select {
			case <-sctx.Done():
				// Cancelled between chunks: no summary flush.
				err := wrapContextError(req.Provider, sctx.Err())
				out.Send(StreamEvent{Err: err})
				res.setErr(err)
				return
			case ev, ok := <-st.Events():
				if !ok {
					if summary := agg.OnEndOfStream(); summary != nil {
						res.setFinal(summary)
						out.Send(StreamEvent{Response: summary})
						logCompletion(log, summary)
					}
					return
				}
				if ev.Err != nil {
					// Terminal once the stream is established: already
					// delivered events stay delivered, nothing is retried.
					out.Send(StreamEvent{Err: ev.Err})
					res.setErr(ev.Err)
					return
				}
				events, aerr := agg.OnChunk(ev.Response)
				if aerr != nil {
					out.Send(StreamEvent{Err: aerr})
					res.setErr(aerr)
					return
				}
				for _, resp := range events {
					if !resp.Partial && resp.Content != nil {
						res.setFinal(resp)
					}
					out.Send(StreamEvent{Response: resp})
				}
			}
		}
	}()

	return res, nil
}
