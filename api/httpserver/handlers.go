package httpserver

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/model"
	"xdao.co/memoproof/registrar"
	"xdao.co/memoproof/verify"
)

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrInvalidRequest, model.ErrInvalidDigest:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrAlreadyRegistered, model.ErrConflict, model.ErrSuperseded:
		return http.StatusConflict
	case model.ErrSubmissionFailed, model.ErrRPC:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := model.ErrorFrom(err)
	status := statusFor(ce.Code)
	if status >= 500 {
		s.logger().Error("request failed", "request_id", RequestIDFrom(r.Context()), "code", string(ce.Code), "err", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: ce})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// handleDigest hashes a multipart "file" part or, for any other content
// type, the raw request body.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	var (
		src  io.Reader = r.Body
		name string
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		mr, err := r.MultipartReader()
		if err != nil {
			s.writeError(w, r, model.NewError(model.ErrInvalidRequest, err.Error()))
			return
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				s.writeError(w, r, model.NewError(model.ErrInvalidRequest, `multipart body has no "file" part`))
				return
			}
			if err != nil {
				s.writeError(w, r, model.NewError(model.ErrInvalidRequest, err.Error()))
				return
			}
			if part.FormName() == "file" {
				src, name = part, part.FileName()
				break
			}
		}
	}

	cr := &countingReader{r: src}
	d, err := digest.FromReader(cr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: model.NewError(model.ErrInvalidRequest, err.Error())})
			return
		}
		s.writeError(w, r, model.NewError(model.ErrInvalidRequest, err.Error()))
		return
	}
	resp, err := model.NewDigestResponse(d, name, cr.n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, model.NewError(model.ErrInvalidRequest, err.Error()))
		return
	}
	d, err := req.Resolve()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := req.Options()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.verify(r, d, opts)
	if errors.Is(err, verify.ErrSuperseded) {
		s.writeError(w, r, model.NewError(model.ErrSuperseded, err.Error()))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := model.NewVerifyResponse(out)
	status := http.StatusOK
	if resp.Error != nil {
		status = statusFor(resp.Error.Code)
	}
	writeJSON(w, status, resp)
}

// verify runs the request inline, or through the caller's session when
// SessionHeader is set.
func (s *Server) verify(r *http.Request, d digest.Digest, opts registrar.VerifyOptions) (verify.Outcome, error) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		return s.Service.Verify(r.Context(), d, opts), nil
	}
	task := s.session(id).Start(r.Context(), func(ctx context.Context) verify.Outcome {
		return s.Service.Verify(ctx, d, opts)
	})
	s.logger().Debug("verify task started", "session", id, "task", task.ID.String(), "digest", d.String())
	return task.Wait(r.Context())
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, model.NewError(model.ErrInvalidRequest, err.Error()))
		return
	}
	d, err := req.Resolve()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reg, err := s.Service.Register(r.Context(), d, req.Options())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewRegisterResponse(reg))
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	d, err := model.Subject{CID: chi.URLParam(r, "digest")}.Resolve()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.Service.Receipt(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewReceiptResponse(rec))
}
