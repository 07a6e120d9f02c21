package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"callcoach-server-golang/internal/app/server"
	"callcoach-server-golang/internal/config"
	"callcoach-server-golang/internal/data/audio"
	"callcoach-server-golang/internal/domain/compress"
	log "callcoach-server-golang/logger"
)

func main() {
	configFile := flag.String("c", "", "配置文件路径，可选")
	input := flag.String("i", "", "输入音频文件")
	output := flag.String("o", "", "输出文件；多个输入时为输出目录")
	format := flag.String("format", "", "输出格式: webm, ogg, mp3")
	quality := flag.Float64("quality", 0, "质量 0-1")
	bitrate := flag.Int("bitrate", 0, "码率 kbps")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	inputs := flag.Args()
	if *input != "" {
		inputs = append([]string{*input}, inputs...)
	}
	if len(inputs) == 0 {
		fmt.Println("用法: compress -i input.webm [-o out] [-format webm|ogg|mp3] [-quality 0.7] [-bitrate 64] [more inputs...]")
		os.Exit(2)
	}

	log.UseConsole(os.Stderr)
	if *verbose {
		log.SetLevel("debug")
	} else {
		log.SetLevel("warn")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	options := cfg.Compress.Options()
	if *format != "" {
		options.Format = strings.ToLower(*format)
	}
	if *quality > 0 {
		options.Quality = *quality
	}
	if *bitrate > 0 {
		options.Bitrate = *bitrate
	}
	options = options.WithDefaults()

	segments := make([]audio.Segment, len(inputs))
	for i, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("读取 %s 失败: %v\n", path, err)
			os.Exit(1)
		}
		segments[i] = audio.NewSegment(data, MimeTypeOfPath(path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	compressor := server.NewCompressor(cfg)
	results := compressor.CompressAll(ctx, segments, options, cfg.Compress.Workers)

	failed := false
	for i, out := range results {
		dst := OutputPath(inputs[i], *output, len(inputs) > 1, out.MimeType)
		if err := os.WriteFile(dst, out.Data, 0644); err != nil {
			fmt.Printf("写入 %s 失败: %v\n", dst, err)
			failed = true
			continue
		}
		fmt.Printf("%s -> %s (%s) %d -> %d bytes, 压缩率 %.1f%%\n",
			inputs[i], dst, out.MimeType, segments[i].Len(), out.Len(),
			compress.EstimateCompressionRatio(segments[i].Len(), out.Len()))
	}
	if failed {
		os.Exit(1)
	}
}

func loadConfig(configFile string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	if configFile != "" {
		if err := config.ReadFile(v, configFile); err != nil {
			return nil, err
		}
	}
	return config.Load(v)
}

// MimeTypeOfPath 按扩展名猜测媒体类型，解码时还会再按内容识别
func MimeTypeOfPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "opus":
		ext = "ogg"
	case "wave":
		ext = "wav"
	}
	return audio.MimeTypeOf(ext)
}

// OutputPath 输出文件名，扩展名跟随实际的输出类型
func OutputPath(input, output string, isDir bool, mimeType string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	ext := audio.ExtensionOf(mimeType)
	switch {
	case output == "":
		return filepath.Join(filepath.Dir(input), base+".compressed"+ext)
	case isDir:
		return filepath.Join(output, base+ext)
	}
	return output
}
