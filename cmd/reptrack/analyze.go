package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/reptrack/internal/app"
	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/pose"
	"github.com/ayusman/reptrack/internal/rep"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video>",
	Short: "Count the reps in a recorded video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		counter, err := rep.NewCounter(rep.Config{
			UpThreshold:   cfg.UpThreshold,
			DownThreshold: cfg.DownThreshold,
		})
		if err != nil {
			return err
		}

		detector, err := pose.NewMediaPipeDetector(pose.Config{
			MinConfidence:   cfg.MinDetectionConfidence,
			MinTrackingConf: cfg.MinTrackingConfidence,
			MinVisibility:   cfg.MinVisibility,
		}, log)
		if err != nil {
			return fmt.Errorf("pose detector unavailable: %w", err)
		}
		defer detector.Close()

		video := capture.NewVideoFile(args[0])
		if err := video.Open(); err != nil {
			return err
		}
		defer video.Close()

		result, err := analyze(cmd, video, detector, app.NewProcessor(counter))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d reps in %d frames\n", result.State.Count, result.Frames)
		for i, at := range result.RepFrames {
			fmt.Fprintf(cmd.OutOrStdout(), "  rep %d at %s\n", i+1, frameTime(at, video.SourceFPS()))
		}
		return nil
	},
}

type analysis struct {
	State     rep.State
	Frames    int
	Absent    int
	RepFrames []int
}

// analyze runs every frame of video through processor in order.
func analyze(cmd *cobra.Command, video *capture.VideoFile, detector pose.Detector, processor *app.Processor) (analysis, error) {
	total := video.FrameCount()
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	var res analysis
	for {
		if err := cmd.Context().Err(); err != nil {
			return res, err
		}

		frame, err := video.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			break
		}
		if err != nil {
			return res, err
		}

		subjects, err := detector.Detect(frame)
		if err != nil {
			log.Debug("pose detection failed", zap.Int("frame", res.Frames), zap.Error(err))
		}
		ev := processor.Process(pose.Detection{
			Subjects:  subjects,
			Width:     frame.Cols(),
			Height:    frame.Rows(),
			Timestamp: time.Now(),
		})
		frame.Close()

		if ev.Absent {
			res.Absent++
		}
		if ev.Update.Completed {
			res.RepFrames = append(res.RepFrames, res.Frames)
		}
		res.Frames++
		bar.Add(1)
	}

	res.State = processor.Counter().State()
	log.Info("analysis finished",
		zap.Int("frames", res.Frames),
		zap.Int("absent", res.Absent),
		zap.Int("reps", res.State.Count))
	return res, nil
}

func frameTime(frame int, fps float64) string {
	if fps <= 0 {
		return fmt.Sprintf("frame %d", frame)
	}
	return (time.Duration(float64(frame) / fps * float64(time.Second))).Truncate(time.Millisecond).String()
}
