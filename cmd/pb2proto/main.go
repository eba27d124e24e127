package main

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/cobra"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/kestrelgs/pb2proto/internal/browse"
	"github.com/kestrelgs/pb2proto/internal/config"
	"github.com/kestrelgs/pb2proto/internal/elfimage"
	"github.com/kestrelgs/pb2proto/internal/keyrecovery"
	glog "github.com/kestrelgs/pb2proto/internal/log"
	"github.com/kestrelgs/pb2proto/internal/pipeline"
	"github.com/kestrelgs/pb2proto/internal/trace"
	"github.com/kestrelgs/pb2proto/internal/ui/colorize"
	"github.com/kestrelgs/pb2proto/internal/validate"
)

var (
	verbose      bool
	quiet        bool
	outputDir    string
	blacklist    []string
	disasmFlag   bool
	validateFlag bool
	mmapFlag     bool
	adbPath      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pb2proto",
		Short: "Recover .proto schemas from a Unity IL2CPP Android build",
		Long: `pb2proto reverse-engineers a Unity IL2CPP Android build to reproduce its
Protocol Buffer schema: it locates the AES key material embedded in
libil2cpp.so's instruction stream, decrypts the IL2CPP global-metadata
blob, walks the resulting type system, and emits .proto files.

Examples:
  pb2proto extract game.apks                       # unpack an .apks bundle
  pb2proto decrypt libil2cpp.so metadata.enc out    # recover key + decrypt
  pb2proto protos libil2cpp.so metadata.dat out/    # emit .proto files
  pb2proto keys libil2cpp.so --disasm               # show the key_xor window
  pb2proto devices                                  # list attached adb devices`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (summary only)")

	rootCmd.AddCommand(
		newExtractCmd(),
		newDecryptCmd(),
		newProtosCmd(),
		newDevicesCmd(),
		newInfoCmd(),
		newBrowseCmd(),
		newKeysCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorize.Error(err.Error()))
		os.Exit(1)
	}
}

func newExtractCmd() *cobra.Command {
	var fromDevice, pkg, device string

	cmd := &cobra.Command{
		Use:   "extract <bundle.apks | --from-device>",
		Short: "Extract libil2cpp.so and global-metadata.dat from an .apks bundle or a device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			logger := glog.L

			if fromDevice != "" {
				workingDir, err := os.MkdirTemp("", "pb2proto-device-*")
				if err != nil {
					return err
				}
				result, err := pipeline.ExtractFromDevice(logger, adbPath, device, pkg, workingDir)
				if err != nil {
					return err
				}
				fmt.Println(result.ApksPath)
				return nil
			}

			if len(args) == 0 {
				return cmd.Help()
			}
			result, err := pipeline.ExtractFromAPKs(logger, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("libil2cpp.so: %d bytes\n", len(result.Libil2cpp))
			fmt.Printf("global-metadata.dat: %d bytes\n", len(result.Metadata))
			return nil
		},
	}

	cmd.Flags().StringVar(&fromDevice, "from-device", "", "pull the package from the device named by --device instead of reading an .apks file (any non-empty value enables this)")
	cmd.Flags().StringVar(&pkg, "package", "", "Android package name to pull (required with --from-device)")
	cmd.Flags().StringVar(&device, "device", "", "adb device serial (required with --from-device)")
	cmd.Flags().StringVar(&adbPath, "adb", "adb", "path to the adb binary")

	return cmd
}

func newDecryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt <libil2cpp.so> <encrypted-metadata> <output-path>",
		Short: "Recover the AES key material and decrypt global-metadata.dat",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			out := newOutputWriter()
			defer out.Close()

			result, err := pipeline.DecryptMetadata(glog.L, args[0], args[1], args[2], mmapFlag)
			if err != nil {
				return err
			}

			if !quiet {
				narrate(out, result.Events)
			}
			out.Write(fmt.Sprintf("key_xor=%s  decrypted=%d bytes -> %s",
				glog.Hex(result.KeyXor), len(result.Plaintext), args[2]))
			return nil
		},
	}
	return cmd
}

func newProtosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protos <libil2cpp.so> <metadata.dat> <output-dir>",
		Short: "Walk the IL2CPP type system and emit .proto files",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}

			out := newOutputWriter()
			defer out.Close()

			result, err := pipeline.GenerateProtos(glog.L, args[0], args[1], args[2], cfg.Blacklist, mmapFlag)
			if err != nil {
				return err
			}

			if !quiet {
				narrate(out, result.Events)
			}
			out.Write(fmt.Sprintf("Generated %d proto files in %s", len(result.FilesWritten), args[2]))

			if validateFlag {
				issues, err := validate.Schema(result.Schema, result.Units)
				if err != nil {
					return fmt.Errorf("validate schema: %w", err)
				}
				for _, issue := range issues {
					out.Write(colorize.Error("validate: " + issue))
				}
				if len(issues) == 0 {
					out.Write("validate: all packages internally consistent")
				}
			}

			if disasmFlag {
				for _, path := range result.FilesWritten {
					src, err := os.ReadFile(path)
					if err != nil {
						continue
					}
					out.Write(colorize.Proto(string(src)))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides config file)")
	cmd.Flags().StringSliceVar(&blacklist, "blacklist", nil, "namespace prefixes to skip (overrides config file)")
	cmd.Flags().BoolVar(&validateFlag, "validate", false, "validate emitted schema with google.golang.org/protobuf's descriptor builder")
	cmd.Flags().BoolVar(&disasmFlag, "disasm", false, "print a syntax-highlighted preview of every emitted file")
	cmd.Flags().BoolVar(&mmapFlag, "mmap", false, "mmap libil2cpp.so instead of reading it into the heap")
	return cmd
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys <libil2cpp.so>",
		Short: "Recover the AES key material embedded in libil2cpp.so",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()

			raw, closer, err := loadBinary(args[0], mmapFlag)
			if err != nil {
				return err
			}
			defer closer()

			img, err := elfimage.Load(raw)
			if err != nil {
				return fmt.Errorf("parse libil2cpp: %w", err)
			}
			captured, err := keyrecovery.Recover(img)
			if err != nil {
				return fmt.Errorf("recover key material: %w", err)
			}

			out := newOutputWriter()
			defer out.Close()

			out.Write(fmt.Sprintf("%s key recovery", colorize.Header("▶")))
			out.Write(fmt.Sprintf("  %s %s", colorize.Detail("key_xor ="), colorize.String(fmt.Sprintf("0x%016x", captured.KeyXor))))
			out.Write(fmt.Sprintf("  %s %s", colorize.Detail("key     ="), colorize.Key(hex.EncodeToString(captured.AESKey[:]))))

			if disasmFlag {
				out.Write(colorize.Border("───── key_xor instruction window ─────"))
				disasmWindow(out, img, ".text", captured.KeyXorInstructionOffset, 5)
				out.Write(colorize.Border("───── resolved key address ─────"))
				out.Write(fmt.Sprintf("  %s %s  %s", colorize.FuncName("key_va"), colorize.Address(captured.KeyVA),
					colorize.Comment("; 16 bytes read from here form the AES key")))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&disasmFlag, "disasm", false, "decode and print the key_xor instruction window via arm64asm")
	cmd.Flags().BoolVar(&mmapFlag, "mmap", false, "mmap libil2cpp.so instead of reading it into the heap")
	return cmd
}

// disasmWindow prints count decoded instructions from section starting at
// byteOffset, in the same address/hex/mnemonic layout the teacher's trace
// viewer used for emulated instructions — here applied to the static
// key-recovery window instead of a live emulation trace.
func disasmWindow(out *outputWriter, img *elfimage.Image, section string, byteOffset, count int) {
	instructions := img.Instructions(section)
	sectionStart, _, ok := img.SectionRange(section)
	if !ok {
		return
	}

	startIndex := byteOffset / 4
	for i := startIndex; i < startIndex+count && i < len(instructions); i++ {
		word := instructions[i]
		code := make([]byte, 4)
		binary.LittleEndian.PutUint32(code, word)

		dis := "?"
		if inst, err := arm64asm.Decode(code); err == nil {
			dis = inst.String()
		}

		va, _ := img.FileOffsetToVA(uint64(sectionStart + i*4))
		out.Write(formatDisasmLine(va, code, dis))
	}
}

// formatDisasmLine renders one disassembled instruction line, adapted from
// the teacher's emulation trace formatter: address, raw opcode bytes, and
// decoded mnemonic.
func formatDisasmLine(addr uint64, code []byte, dis string) string {
	var b strings.Builder
	b.WriteString(colorize.Address(addr))
	b.WriteString("  ")
	if len(code) >= 4 {
		hexBytes := fmt.Sprintf("%02X%02X%02X%02X", code[3], code[2], code[1], code[0])
		b.WriteString(colorize.HexBytes(hexBytes))
		b.WriteString("  ")
	}
	b.WriteString(colorize.Instruction(dis))
	return b.String()
}

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <libil2cpp.so> <metadata.dat>",
		Short: "Interactively browse the recovered schema in a terminal UI",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()

			scratchDir, err := os.MkdirTemp("", "pb2proto-browse-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(scratchDir)

			result, err := pipeline.GenerateProtos(glog.L, args[0], args[1], scratchDir, nil, mmapFlag)
			if err != nil {
				return err
			}
			return browse.Run(result.Units)
		},
	}
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List adb devices ready for extraction",
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			devices, err := pipeline.LoadDevices(glog.L, adbPath)
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Printf("%s\t%s\n", d.Serial, d.State)
			}
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <libil2cpp.so>",
		Short: "Show a binary's name, size, and whether it carries the ELF magic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			raw, closer, err := loadBinary(absPath, mmapFlag)
			if err != nil {
				return err
			}
			defer closer()

			fmt.Printf("Binary: %s\n", filepath.Base(absPath))
			fmt.Printf("Size:   %d bytes\n", len(raw))
			if len(raw) >= 4 && raw[0] == 0x7f && raw[1] == 'E' && raw[2] == 'L' && raw[3] == 'F' {
				fmt.Println("Format: ELF")
			} else {
				fmt.Println("Format: not ELF")
			}
			return nil
		},
	}
}

// loadBinary reads path either via os.ReadFile or via a read-only mmap
// depending on useMmap, returning the bytes and a closer that must run once
// the caller is done with them (a no-op in the non-mmap case).
func loadBinary(path string, useMmap bool) ([]byte, func() error, error) {
	if !useMmap {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		return raw, func() error { return nil }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return []byte(m), func() error {
		defer f.Close()
		return m.Unmap()
	}, nil
}

func initLogging() {
	glog.Init(verbose)
}

func resolveConfig() (config.Config, error) {
	fileCfg, err := config.Load(config.FileName)
	if err != nil {
		return config.Config{}, err
	}
	return config.Merge(fileCfg, outputDir, blacklist, verbose), nil
}

// narrate prints pipeline stage events through the output writer, tagged
// and colorized the same way the disassembly trace was.
func narrate(out *outputWriter, events []*trace.Event) {
	for _, e := range events {
		line := fmt.Sprintf("%s %s %s", colorize.Tag(e.PrimaryTag()), e.Name, colorize.Detail(e.Detail))
		out.Write(strings.TrimSpace(line))
	}
}

// outputWriter buffers stdout writes on a background goroutine so emitting
// thousands of recovered fields never blocks the pipeline itself.
type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 64*1024),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

func (w *outputWriter) Write(line string) {
	select {
	case w.ch <- line:
	default:
	}
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}
