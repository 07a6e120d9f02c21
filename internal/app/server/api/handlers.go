package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"callcoach-server-golang/constants"
	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/domain/compress"
	"callcoach-server-golang/internal/domain/transcribe"
	log "callcoach-server-golang/logger"
)

const (
	HeaderOriginalSize     = "X-Original-Size"
	HeaderCompressedSize   = "X-Compressed-Size"
	HeaderCompressionRatio = "X-Compression-Ratio"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type transcribeResponse struct {
	*transcribe.Result
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"compression_ratio"`
	MimeType       string  `json:"mime_type"`
}

// handleCompress 上传音频，返回压缩后的音频本身
func (s *ApiServer) handleCompress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求", "")
		return
	}
	segment, options, status, err := s.readUpload(w, r)
	if err != nil {
		log.Warnf("读取上传音频失败: %v", err)
		writeError(w, status, "读取音频失败", err.Error())
		return
	}

	out := s.compressor.Compress(r.Context(), segment, options)

	w.Header().Set("Content-Type", out.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="audio%s"`, audio.ExtensionOf(out.MimeType)))
	setSizeHeaders(w, segment, out)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

// handleTranscribe 压缩后转发给转写服务
func (s *ApiServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "仅支持POST请求", "")
		return
	}
	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "转写服务未配置", "")
		return
	}
	segment, options, status, err := s.readUpload(w, r)
	if err != nil {
		log.Warnf("读取上传音频失败: %v", err)
		writeError(w, status, "读取音频失败", err.Error())
		return
	}

	out := s.compressor.Compress(r.Context(), segment, options)
	result, err := s.transcriber.Transcribe(r.Context(), out)
	if err != nil {
		log.Errorf("转写失败: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, transcribe.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "转写音频失败", err.Error())
		return
	}

	setSizeHeaders(w, segment, out)
	writeJSON(w, http.StatusOK, transcribeResponse{
		Result:         result,
		OriginalSize:   segment.Len(),
		CompressedSize: out.Len(),
		Ratio:          compress.EstimateCompressionRatio(segment.Len(), out.Len()),
		MimeType:       out.MimeType,
	})
}

func (s *ApiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.health != nil {
		for name, ok := range s.health(r.Context()) {
			resp[name] = ok
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readUpload 解析multipart表单：audio 文件，可选 format/quality/bitrate
func (s *ApiServer) readUpload(w http.ResponseWriter, r *http.Request) (audio.Segment, audio.Options, int, error) {
	// 表单字段也计入限制，多留1MB
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)

	file, header, err := r.FormFile(constants.UploadFieldName)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return audio.Segment{}, audio.Options{}, http.StatusRequestEntityTooLarge, err
		}
		return audio.Segment{}, audio.Options{}, http.StatusBadRequest, fmt.Errorf("缺少%s参数: %w", constants.UploadFieldName, err)
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		return audio.Segment{}, audio.Options{}, http.StatusRequestEntityTooLarge, fmt.Errorf("文件过大: %d > %d", header.Size, s.maxUpload)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return audio.Segment{}, audio.Options{}, http.StatusBadRequest, err
	}
	if len(data) == 0 {
		return audio.Segment{}, audio.Options{}, http.StatusBadRequest, errors.New("音频为空")
	}

	options, err := s.parseOptions(r)
	if err != nil {
		return audio.Segment{}, audio.Options{}, http.StatusBadRequest, err
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return audio.NewSegment(data, mimeType), options, http.StatusOK, nil
}

func (s *ApiServer) parseOptions(r *http.Request) (audio.Options, error) {
	options := s.defaults
	if format := strings.ToLower(r.FormValue("format")); format != "" {
		options.Format = format
	}
	if quality := r.FormValue("quality"); quality != "" {
		q, err := strconv.ParseFloat(quality, 64)
		if err != nil {
			return options, fmt.Errorf("quality参数错误: %w", err)
		}
		options.Quality = q
	}
	if bitrate := r.FormValue("bitrate"); bitrate != "" {
		b, err := strconv.Atoi(bitrate)
		if err != nil {
			return options, fmt.Errorf("bitrate参数错误: %w", err)
		}
		options.Bitrate = b
	}
	return options.WithDefaults(), nil
}

func setSizeHeaders(w http.ResponseWriter, original, out audio.Segment) {
	w.Header().Set(HeaderOriginalSize, strconv.Itoa(original.Len()))
	w.Header().Set(HeaderCompressedSize, strconv.Itoa(out.Len()))
	w.Header().Set(HeaderCompressionRatio, strconv.FormatFloat(compress.EstimateCompressionRatio(original.Len(), out.Len()), 'f', 1, 64))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("写入响应失败: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
