/*
Package cli provides command-line interface utilities for the stopwatch command.

Output Formatting:

Command results are written as text, JSON or CSV. Values that implement Tabular are
rendered as aligned columns in text mode and as rows in CSV mode; JSON always encodes
the value itself:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(os.Stdout, summaries); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
