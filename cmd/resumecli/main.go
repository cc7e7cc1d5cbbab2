package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"resume-extractor/internal/bootstrap"
	"resume-extractor/internal/config"
	"resume-extractor/internal/export"
	"resume-extractor/internal/logger"
	"resume-extractor/internal/processor"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const cellWidth = 40

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 返回进程退出码，延迟的清理在退出前执行
func run(args []string, stdout, stderr io.Writer) int {
	var (
		configPath string
		modelKey   string
		outputPath string
		lang       string
		verbose    bool
	)
	fs := pflag.NewFlagSet("resumecli", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	fs.StringVarP(&modelKey, "model", "m", "", "模型选择键，例如 openai:gpt-4o-mini-2024-07-18 (必填)")
	fs.StringVarP(&outputPath, "output", "o", "", "导出xlsx的路径，为空则只打印表格")
	fs.StringVarP(&lang, "lang", "l", export.LangZH, "导出表头语言: zh 或 en")
	fs.BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "用法: %s -m provider:model [选项] 简历文件...\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	files := fs.Args()
	if modelKey == "" || len(files) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger.SetOutput(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}, level, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "初始化失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := application.Close(); err != nil {
			fmt.Fprintf(stderr, "关闭存储连接失败: %v\n", err)
		}
	}()

	inputs, err := readFiles(files)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	result, err := application.Processor.ProcessFiles(ctx, inputs, modelKey, func(index, total int, fileName string) {
		fmt.Fprintf(stderr, "[%d/%d] %s\n", index+1, total, fileName)
	})
	if err != nil {
		fmt.Fprintf(stderr, "提取失败: %v\n", err)
		return 1
	}

	printTable(stdout, result)

	if outputPath != "" {
		if err := writeXLSX(outputPath, result, lang); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		fmt.Fprintf(stderr, "已导出到 %s\n", outputPath)
	}

	return reportFailures(stderr, result)
}

// reportFailures 打印失败的文件，有失败时返回1
func reportFailures(w io.Writer, result *processor.FileBatchResult) int {
	failed := result.Errors()
	for _, o := range failed {
		fmt.Fprintf(w, "失败 %s: %v\n", o.FileName, o.Err)
	}
	if len(failed) > 0 {
		return 1
	}
	return 0
}

func readFiles(paths []string) ([]processor.FileInput, error) {
	inputs := make([]processor.FileInput, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("读取文件失败 %s: %w", p, err)
		}
		inputs = append(inputs, processor.FileInput{Name: filepath.Base(p), Data: data})
	}
	return inputs, nil
}

func printTable(out io.Writer, result *processor.FileBatchResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\t文件\t姓名\t公司经历\t毕业学校\t状态")
	for _, o := range result.Outcomes {
		status := "ok"
		var name, companies, schools string
		if o.Err != nil {
			status = truncate(o.Err.Error())
		} else if o.Record != nil {
			name = o.Record.Name
			companies = truncate(export.FormatEntries(o.Record.Companies))
			schools = truncate(export.FormatEntries(o.Record.GraduateSchools))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", o.Index+1, o.FileName, name, companies, schools, status)
	}
	w.Flush()
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= cellWidth {
		return s
	}
	return string([]rune(s)[:cellWidth]) + "..."
}

func writeXLSX(path string, result *processor.FileBatchResult, lang string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %w", err)
	}
	if err := export.WriteXLSX(f, result.Records(), lang); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
