// Command neodumastrans translates a PDF while preserving its layout:
// extract structural blocks, translate the text, white out the original
// regions and overlay the re-rendered translation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Neo-Dumas/Neo-DumasTrans/internal/config"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/extraction"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/layout"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/logger"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/pipeline"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/rasterize"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/redact"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/render"
	"github.com/Neo-Dumas/Neo-DumasTrans/internal/translator"
)

var (
	pdfFlag     = flag.String("pdf", "", "PDF file path to translate")
	configFlag  = flag.String("config", "neodumastrans.yaml", "Config file path")
	outputFlag  = flag.String("output", "", "Output directory (default: alongside the input)")
	langFlag    = flag.String("lang", "", "Target language code (e.g. zh, en, ja)")
	modeFlag    = flag.String("mode", "", "PDF mode: txt, ocr, vlm or auto")
	workdirFlag = flag.String("workdir", "", "Working directory for intermediate artifacts")
	verboseFlag = flag.Bool("verbose", false, "Enable debug logging")
)

func printHelp() {
	fmt.Println("NeoDumasTrans - 保留版面的 PDF 翻译工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  neodumastrans --pdf <PATH> [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  --pdf <PATH>       要翻译的 PDF 文件")
	fmt.Println("  --config <PATH>    配置文件路径 (默认: neodumastrans.yaml)")
	fmt.Println("  --output <PATH>    输出目录 (默认与输入同目录)")
	fmt.Println("  --lang <CODE>      目标语言 (例如: zh, en, ja)")
	fmt.Println("  --mode <MODE>      PDF 模式: txt, ocr, vlm 或 auto")
	fmt.Println("  --workdir <PATH>   中间产物工作目录")
	fmt.Println("  --verbose          输出调试日志")
	fmt.Println("  -h, --help         显示帮助信息")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  neodumastrans --pdf paper.pdf --lang zh")
	fmt.Println("  neodumastrans --pdf scan.pdf --mode vlm --output ./out")
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	if *pdfFlag == "" {
		printHelp()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	if *langFlag != "" {
		cfg.TargetLang = *langFlag
	}
	if *modeFlag != "" {
		cfg.PDFType = *modeFlag
	}
	if *workdirFlag != "" {
		cfg.WorkDirectory = *workdirFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置无效: %v\n", err)
		os.Exit(1)
	}

	level := logger.LevelInfo
	if *verboseFlag {
		level = logger.LevelDebug
	}
	if err := logger.Init(&logger.Config{
		LogFilePath:   "neodumastrans.log",
		Level:         level,
		EnableConsole: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx := context.Background()

	outputDir := *outputFlag
	if outputDir == "" {
		outputDir = filepath.Dir(*pdfFlag)
	}

	p, err := buildPipeline(ctx, cfg, *pdfFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== PDF 翻译 ===\n输入: %s\n目标语言: %s\n", *pdfFlag, cfg.TargetLang)

	result := p.Run(ctx, *pdfFlag, outputDir)
	if !result.Success {
		fmt.Fprintf(os.Stderr, "翻译失败: %v\n", result.Err)
		os.Exit(1)
	}

	fmt.Printf("✅ 翻译完成: %s\n", result.OutputPath)
}

// buildPipeline wires the stage services from the config.
func buildPipeline(ctx context.Context, cfg *config.Config, pdfPath string) (*pipeline.Pipeline, error) {
	chatModel, err := translator.NewChatModel(ctx, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}

	fileTranslator := translator.NewFile(translator.FileConfig{
		Model:       chatModel,
		TargetLang:  cfg.TargetLang,
		Concurrency: cfg.TranslateConcurrency,
		CharBudget:  cfg.CharBudget,
	})

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	engine := extraction.WithRetry(extraction.NewAPIClient(extraction.APIConfig{
		BaseURL:   cfg.ExtractBaseURL,
		APIKey:    cfg.ExtractAPIKey,
		OutputDir: filepath.Join(cfg.WorkDirectory, stem, "extract_results"),
	}), 2)

	sim := layout.NewSimulator(layout.NewTableMeasurer(), layout.DefaultWidthScale)

	stages := pipeline.Stages{
		Engine:     engine,
		Translator: fileTranslator,
		Censorer:   redact.NewGenerator(nil),
		Renderer:   render.NewBlockRenderer(sim),
		Converter:  rasterize.NewConverter(rasterize.Config{}),
	}

	return pipeline.New(cfg, stages), nil
}
